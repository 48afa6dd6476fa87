package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avroute/internal/balancer"
	"github.com/vyrodovalexey/avroute/internal/config"
	"github.com/vyrodovalexey/avroute/internal/observability"
)

// run starts the application and blocks until a termination signal, then
// shuts everything down in reverse dependency order.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal",
			observability.String("signal", sig.String()),
		)
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher, logger)
}

// startConfigWatcher begins watching the configuration file when it exists.
// Only the balancer strategy is applied hot; other changes take effect on
// restart.
func startConfigWatcher(ctx context.Context, app *application, configPath string, logger observability.Logger) *config.Watcher {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		strategy := balancer.Strategy(cfg.Balancer.Strategy)
		if strategy != app.balancer.Strategy() {
			if err := app.balancer.SetStrategy(strategy); err != nil {
				logger.Error("failed to apply balancer strategy", observability.Error(err))
				return
			}
			logger.Info("balancer strategy updated",
				observability.String("strategy", string(strategy)),
			)
		}
		logger.Info("configuration reloaded, non-hot settings apply on restart")
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}

	return watcher
}

// shutdown stops components in reverse dependency order.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("config watcher stop failed", observability.Error(err))
		}
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", observability.Error(err))
	}

	app.router.Cleanup()

	if app.limiter != nil {
		if err := app.limiter.Close(); err != nil {
			logger.Warn("rate limiter close failed", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", observability.Error(err))
	}

	logger.Info("shutdown complete")
}
