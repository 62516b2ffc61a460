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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/trailguard/internal/api"
	"github.com/starford/trailguard/internal/channel"
	"github.com/starford/trailguard/internal/journey"
	"github.com/starford/trailguard/internal/mcpserver"
	"github.com/starford/trailguard/internal/ports"
	"github.com/starford/trailguard/internal/remote"
	"github.com/starford/trailguard/internal/safety"
	"github.com/starford/trailguard/internal/speech"
	"github.com/starford/trailguard/internal/sse"
	"github.com/starford/trailguard/internal/storage"
	"github.com/starford/trailguard/internal/store"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the wired components shared by the serve and mcp commands.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	svc    *safety.Service
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close cache", slog.String("error", err.Error()))
	}
}

// newApplication applies opts over the defaults.
func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initializes logging and builds the orchestrator.
func setup(app *application, events ports.EventSink) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("import_dir", cfg.Contacts.ImportDir),
		slog.Bool("remote", cfg.Remote.Enabled()),
		slog.Int("channels", len(cfg.Channels)),
		slog.Bool("voice", cfg.Voice.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize the local cache.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, db: db}

	deps := safety.Deps{
		Store:  db,
		Events: events,
		Logger: logger,
	}

	// Device contact exports.
	if cfg.Contacts.ImportDir != "" {
		if err := os.MkdirAll(cfg.Contacts.ImportDir, 0o755); err != nil {
			rt.close()
			return nil, fmt.Errorf("create import dir: %w", err)
		}
		deps.Imports, err = storage.NewFS(cfg.Contacts.ImportDir, logger)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("init import dir: %w", err)
		}
	}

	// Remote document store; absent means local-only mode.
	if cfg.Remote.Enabled() {
		client, err := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("init remote store: %w", err)
		}
		deps.Remote = client
		deps.LocationLog = client
	}

	deps.Channels, err = channel.Build(cfg.Channels, logger.With(slog.String("component", "channel")))
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init channels: %w", err)
	}

	if cfg.Voice.Enabled {
		switch cfg.Voice.Backend {
		case VoiceBackendWebsocket:
			deps.Speech = speech.NewWebsocket(speech.WebsocketConfig{
				URL:    cfg.Voice.URL,
				APIKey: cfg.Voice.APIKey,
			})
		default:
			deps.Speech = speech.NewRelay()
		}
	}

	rt.svc, err = safety.New(cfg.SafetyConfig(), deps)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init service: %w", err)
	}
	return rt, nil
}

// Run starts the HTTP server and background loops with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker; position updates are throttled.
	broker := sse.NewBrokerWithOptions(2*time.Second, []string{journey.EventPosition},
		sse.WithHeartbeat(app.config.App.HTTP.SSEHeartbeat))
	defer broker.Close()

	rt, err := setup(app, broker)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger, svc := rt.cfg, rt.logger, rt.svc

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	// Build API router.
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Detector and import watcher.
	g.Go(func() error {
		return svc.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := svc.Close(shutdownCtx); err != nil {
			logger.Error("Service shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.svc.Close(shutdownCtx); err != nil {
			rt.logger.Error("Service shutdown error", slog.String("error", err.Error()))
		}
	}()

	rt.logger.Info("Serving MCP over stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}
