package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/app"
	"github.com/fayaebeb/mirai-mod/internal/config"
	"github.com/fayaebeb/mirai-mod/internal/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := observability.InitLogger(cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	logger.Info("mirai is running",
		zap.String("metadata", cfg.MetadataBackend),
		zap.String("vectors", cfg.VectorBackend),
		zap.String("answers", cfg.AnswerBackend))
	if err := application.Run(ctx); err != nil {
		logger.Error("exited with error", zap.Error(err))
	}
	logger.Info("shut down")
}
