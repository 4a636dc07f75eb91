package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/newsflow/internal/app"
	"github.com/deusflow/newsflow/internal/config"
	"github.com/deusflow/newsflow/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg == nil {
		// --help
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("newsflow started", "version", cfg.Version, "mode", cfg.Mode, "interval", cfg.Interval)
	if err := a.Run(ctx); err != nil {
		logger.Error("Stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("newsflow stopped")
}
