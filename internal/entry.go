// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hyorim/carenotes/internal/api"
	"github.com/hyorim/carenotes/internal/controller"
	"github.com/hyorim/carenotes/internal/mcpserver"
	"github.com/hyorim/carenotes/internal/notesclient"
	"github.com/hyorim/carenotes/internal/notesource"
	"github.com/hyorim/carenotes/internal/palette"
	"github.com/hyorim/carenotes/internal/patients"
	"github.com/hyorim/carenotes/internal/session"
	"github.com/hyorim/carenotes/internal/sse"
)

const shutdownTimeout = 10 * time.Second

// deps are the pieces shared by the HTTP server and the MCP server.
type deps struct {
	logger    *slog.Logger
	fetcher   controller.Fetcher
	store     *notesource.Store // nil unless upstream mode is local
	directory *patients.DB
	palette   *palette.Palette
}

func (a *application) setup() (*deps, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("upstream_mode", cfg.Upstream.Mode),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	d := &deps{logger: logger, fetcher: a.fetcher}

	pal, err := cfg.Timeline.LoadPalette()
	if err != nil {
		return nil, fmt.Errorf("load palette: %w", err)
	}
	d.palette = pal

	if d.fetcher == nil {
		switch cfg.Upstream.Mode {
		case UpstreamModeLocal:
			store, err := notesource.NewStore(cfg.Source.Path,
				notesource.WithParseOptions(cfg.Source.ParseOptions()),
				notesource.WithEnvelopeFields(cfg.Upstream.EnvelopeFields...))
			if err != nil {
				return nil, fmt.Errorf("init notes source: %w", err)
			}
			d.store, d.fetcher = store, store
		default:
			client, err := notesclient.New(cfg.Upstream.BaseURL, cfg.Upstream.ClientOptions()...)
			if err != nil {
				return nil, fmt.Errorf("init notes client: %w", err)
			}
			d.fetcher = client
		}
	}

	db, err := patients.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init patient directory: %w", err)
	}
	if err := db.Seed(cfg.Directory.Seed); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed patient directory: %w", err)
	}
	d.directory = db

	return d, nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	// A shutdown signal cancels the errgroup context, which every goroutine
	// below waits on.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := app.setup()
	if err != nil {
		return err
	}
	defer d.directory.Close()

	cfg := app.config
	logger := d.logger

	broker := sse.NewBroker()
	defer broker.Close()

	sessions := session.NewManager(d.fetcher,
		session.WithPublisher(broker),
		session.WithLogger(logger),
		session.WithControllerOptions(cfg.Timeline.ControllerOptions(d.palette, cfg.Upstream.EnvelopeFields)...))
	defer sessions.CloseAll()

	handler := api.NewHandler(sessions, d.directory, d.palette, broker)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := d.directory.Count(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	// In local mode the server also speaks the records service protocol, so
	// another instance can point its http upstream here.
	if d.store != nil {
		r.Route("/records", func(rr chi.Router) {
			d.store.Register(rr, logger)
		})
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if d.store != nil && cfg.Source.Watch {
		g.Go(func() error {
			err := notesource.Watch(gCtx, d.store.Root(), logger, func(patientID string) {
				n := sessions.NotesChanged(patientID)
				logger.Debug("notes changed",
					slog.String("patient_id", patientID),
					slog.Int("sessions", n))
			})
			if err != nil {
				// A broken watcher only costs change notifications.
				logger.Warn("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Any cancellation of gCtx starts the shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		stop()
		logger.Info("Shutting down server...", slog.String("cause", context.Cause(gCtx).Error()))

		// Event streams never finish on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the read-only timeline tools over stdio until stdin closes.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	d, err := app.setup()
	if err != nil {
		return err
	}
	defer d.directory.Close()

	d.logger.Info("MCP server starting on stdio")
	srv := mcpserver.New(d.fetcher, d.directory, d.palette, app.config.Upstream.EnvelopeFields...)
	return srv.ServeStdio()
}
