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

	"github.com/starford/tabcache/internal/api"
	"github.com/starford/tabcache/internal/confwatch"
	"github.com/starford/tabcache/internal/fetch"
	"github.com/starford/tabcache/internal/remote"
	"github.com/starford/tabcache/internal/session"
	"github.com/starford/tabcache/internal/sse"
	"github.com/starford/tabcache/internal/store"
	pkgconfig "github.com/starford/tabcache/pkg/config"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. The level lives in a LevelVar so
	// the config watcher can adjust it at runtime.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.Cache.SQLitePath),
		slog.String("backend_url", cfg.Backend.URL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Durable preview cache.
	db, err := store.Open(cfg.Cache.SQLitePath)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Notebook backend client.
	backend := remote.New(remote.Config{
		BaseURL:   cfg.Backend.URL,
		Timeout:   cfg.Backend.Timeout,
		AuthToken: cfg.Backend.AuthToken,
	})

	// Fetch orchestrator.
	orch := fetch.New(db, backend, logger)

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// Session manager publishing tab events to SSE subscribers.
	mgr := session.NewManager(db, db, orch, backend, logger, func(kind, notebookID, tabID string) {
		broker.PublishSessionEvent(kind, notebookID, tabID)
	})
	defer mgr.Close()

	// Build API router.
	apiRouter := api.NewRouter(mgr, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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

	// Prometheus metrics (unauthenticated).
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the config file for runtime log-level and backend-token changes.
	if app.configPath != "" {
		g.Go(func() error {
			reload := func(path string) (confwatch.Settings, error) {
				fresh := NewDefaultConfig()
				if loadErr := pkgconfig.Load(path, fresh); loadErr != nil {
					return confwatch.Settings{}, loadErr
				}
				return confwatch.Settings{
					LogLevel:     fresh.App.LogLevel,
					BackendToken: fresh.Backend.AuthToken,
				}, nil
			}
			if watchErr := confwatch.Watch(gCtx, app.configPath, levelVar, backend, reload, logger); watchErr != nil {
				logger.Warn("config watcher unavailable", slog.String("error", watchErr.Error()))
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

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
