package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hyorim/carenotes/internal/controller"
	"github.com/hyorim/carenotes/internal/notesclient"
	"github.com/hyorim/carenotes/internal/palette"
	"github.com/hyorim/carenotes/internal/parser"
	"github.com/hyorim/carenotes/internal/patients"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Upstream modes.
const (
	UpstreamModeHTTP  = "http"
	UpstreamModeLocal = "local"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Upstream  UpstreamConfig    `yaml:"upstream"`
	Source    SourceConfig      `yaml:"source"`
	Timeline  TimelineConfig    `yaml:"timeline"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Directory DirectoryConfig   `yaml:"directory"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := c.Source.Validate(c.Upstream.Mode == UpstreamModeLocal); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Timeline.Validate(); err != nil {
		return fmt.Errorf("timeline: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// UpstreamConfig selects where nursing notes come from.
//
// Mode "http" fetches from the records service at BaseURL; mode "local"
// reads the directory configured under source.
type UpstreamConfig struct {
	Mode           string        `yaml:"mode"`
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	Token          string        `yaml:"token"`
	EnvelopeFields []string      `yaml:"envelope_fields"`
}

// Validate validates the upstream configuration.
func (c *UpstreamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(UpstreamModeHTTP, UpstreamModeLocal)),
		validation.Field(&c.BaseURL,
			validation.When(c.Mode == UpstreamModeHTTP, validation.Required, validation.By(absoluteURL))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.EnvelopeFields, validation.Each(validation.Required)),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// ClientOptions returns the notes client options for this upstream.
func (c *UpstreamConfig) ClientOptions() []notesclient.Option {
	opts := []notesclient.Option{notesclient.WithTimeout(c.Timeout)}
	if c.Token != "" {
		opts = append(opts, notesclient.WithToken(c.Token))
	}
	return opts
}

// SourceConfig describes the local notes directory.
type SourceConfig struct {
	Path               string   `yaml:"path"`
	Watch              bool     `yaml:"watch"`
	Keywords           []string `yaml:"keywords"`
	DeriveImprovements bool     `yaml:"derive_improvements"`
}

// Validate validates the source configuration. The path is only required
// when the local source is in use.
func (c *SourceConfig) Validate(required bool) error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(required, validation.Required)),
		validation.Field(&c.Keywords, validation.Each(validation.Required)),
	)
}

// ParseOptions returns the raw-record parser options.
func (c *SourceConfig) ParseOptions() parser.Options {
	return parser.Options{Keywords: c.Keywords, DeriveImprovements: c.DeriveImprovements}
}

// TimelineConfig holds view behaviour and display settings.
type TimelineConfig struct {
	Debounce    time.Duration   `yaml:"debounce"`
	PaletteFile string          `yaml:"palette_file"`
	Palette     *palette.Config `yaml:"palette"`
}

// Validate validates the timeline configuration.
func (c *TimelineConfig) Validate() error {
	if c.PaletteFile != "" && c.Palette != nil {
		return errors.New("palette and palette_file are mutually exclusive")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Palette),
	)
}

// LoadPalette returns the configured palette: from palette_file, inline, or
// the built-in default.
func (c *TimelineConfig) LoadPalette() (*palette.Palette, error) {
	switch {
	case c.PaletteFile != "":
		return palette.Load(c.PaletteFile)
	case c.Palette != nil:
		return palette.New(*c.Palette), nil
	default:
		return palette.Default(), nil
	}
}

// ControllerOptions returns the per-view controller options.
func (c *TimelineConfig) ControllerOptions(pal *palette.Palette, envelopeFields []string) []controller.Option {
	return []controller.Option{
		controller.WithDebounce(c.Debounce),
		controller.WithEnvelopeFields(envelopeFields...),
		controller.WithPalette(pal),
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DirectoryConfig holds the patient directory seed.
type DirectoryConfig struct {
	Seed patients.Seed `yaml:"seed"`
}

// Validate validates the directory configuration.
func (c *DirectoryConfig) Validate() error {
	known := make(map[string]struct{}, len(c.Seed.Patients))
	for i, p := range c.Seed.Patients {
		if p.ID == "" {
			return fmt.Errorf("seed.patients[%d]: patient_id is required", i)
		}
		if p.BirthDate != "" {
			if err := validation.Validate(p.BirthDate, validation.Date("2006-01-02")); err != nil {
				return fmt.Errorf("seed.patients[%d].birth_date: %w", i, err)
			}
		}
		known[p.ID] = struct{}{}
	}
	for i, l := range c.Seed.Links {
		if err := validation.ValidateStruct(&l,
			validation.Field(&l.Caregiver, validation.Required),
			validation.Field(&l.PatientID, validation.Required),
		); err != nil {
			return fmt.Errorf("seed.links[%d]: %w", i, err)
		}
		if _, ok := known[l.PatientID]; !ok {
			return fmt.Errorf("seed.links[%d]: unknown patient %q", i, l.PatientID)
		}
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Upstream: UpstreamConfig{
			Mode:    UpstreamModeLocal,
			Timeout: notesclient.DefaultTimeout,
		},
		Source: SourceConfig{
			Path:     "./records",
			Watch:    true,
			Keywords: parser.DefaultKeywords,
		},
		Timeline: TimelineConfig{
			Debounce: controller.DefaultDebounce,
		},
		SQLite: SQLiteConfig{
			Path: "./carenotes.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
