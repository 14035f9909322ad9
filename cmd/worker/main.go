// Package main runs the standalone pipeline worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aura-notes/backend/config"
	"github.com/aura-notes/backend/internal/app"
	"github.com/aura-notes/backend/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("info").Fatal("load config", zap.Error(err))
	}
	logger := logging.Must(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	processor, err := a.Processor()
	if err != nil {
		logger.Fatal("pipeline", zap.Error(err))
	}
	a.Resume(ctx)

	logger.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	processor.Start(ctx, cfg.Worker.Concurrency)
	logger.Info("worker stopped")
}
