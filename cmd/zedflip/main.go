package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"zedflip/internal/infra/config"
	ginserver "zedflip/internal/infra/http/gin"
	"zedflip/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := obs.NewLogger(getenv("APP_ENV", cfg.Env))
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	metrics := obs.NewMetrics()
	app, err := buildApplication(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	if cfg.SeedFixtures {
		if err := app.loadFixtures(ctx, fixturesPath(), logger); err != nil {
			logger.Warn("fixtures load failed", "error", err)
		}
	}
	if cfg.AdminEmail != "" {
		if _, err := app.auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, "ZedFlip Admin"); err != nil {
			logger.Error("admin seed failed", "error", err)
		}
	}

	app.runBackground(ctx, logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Metrics: metrics}, obs.HealthHandlers{
		Checks: app.checks,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	app.wait()
	logger.Info("HTTP server stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
