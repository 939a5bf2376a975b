// Package app provides the top-level application lifecycle. It wires the
// pipeline together (sources, registry, filter, detector, feed, broadcaster,
// API server) and supervises the long-running goroutines until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dexradar/internal/config"
	"dexradar/internal/server"
	"dexradar/internal/server/handler"
	"dexradar/internal/server/ws"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the pipeline and the API server, and
// blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("tokens", len(a.cfg.Tokens)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}

	started := time.Now()
	hub := ws.NewHub(deps.Broadcaster, a.logger)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Orch, deps.Feed, deps.Registry, started),
		Pools: handler.NewPoolsHandler(
			deps.Orch, deps.Registry, a.cfg.Registry.MaxAge.Duration),
		Arb: handler.NewArbHandler(
			deps.Detector, deps.Registry, deps.Feed,
			a.cfg.Feed.MaxAge.Duration, a.cfg.Registry.MaxAge.Duration),
		Stats: handler.NewStatsHandler(
			deps.Orch, deps.Registry, deps.Detector, deps.Feed, deps.Broadcaster,
			a.cfg.Feed.MaxAge.Duration, started),
		Metrics: deps.Metrics.Handler(),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(ctx)
	})

	g.Go(func() error {
		return deps.Orch.Run(ctx)
	})

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info("application stopped")
	return err
}
