package internal

import (
	"io"

	"github.com/hyorim/carenotes/internal/controller"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	fetcher   controller.Fetcher
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the structured log stream. The MCP command uses
// it to keep stdout free for the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithFetcher overrides the notes source built from the upstream config.
func WithFetcher(f controller.Fetcher) Option {
	return func(a *application) {
		a.fetcher = f
	}
}
