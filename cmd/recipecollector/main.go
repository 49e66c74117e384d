package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RecipeCollector/internal/app"
	"RecipeCollector/internal/config"
	"RecipeCollector/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("error", "").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	runErr := application.Collect(ctx)
	if err := application.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
	if runErr != nil {
		logger.Error("collection failed", "error", runErr)
		os.Exit(1)
	}
}
