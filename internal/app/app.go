// Package app provides the top-level application lifecycle for the price
// relay. It wires the upstream feed client, the snapshot cache, the fan-out
// hub, and the HTTP surface, then runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pricerelay/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, connects the upstream feed, starts the HTTP
// server, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("upstream", a.cfg.Exchange.WSURL),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	if deps.Server != nil {
		g.Go(deps.Server.Start)
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if deps.Server != nil {
			if err := deps.Server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown", slog.String("error", err.Error()))
			}
		}
		deps.Hub.Close()
		deps.Feed.Disconnect()
		return nil
	})

	// A failed initial dial is not fatal: the feed client schedules its own
	// retries, and an explicit restart remains possible via process restart.
	if err := deps.Feed.Connect(gctx, a.cfg.Exchange.Symbols); err != nil {
		a.logger.Warn("initial upstream connect failed, retry scheduled",
			slog.String("error", err.Error()),
		)
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
