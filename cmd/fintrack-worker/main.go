package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg).WithComponent(applog.ComponentWorker)
	logger.Info("Starting fintrack-worker", "gateway", cfg.BankGateway)

	app, err := cli.Bootstrap(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := app.Close(ctx); err != nil {
			logger.Error("Failed to close application", applog.FieldError, err)
		}
	})

	if err := app.Syncer.Start(ctx); err != nil {
		logger.Error("Failed to start bank syncer", applog.FieldError, err)
		_ = app.Close(context.Background())
		os.Exit(1)
	}

	if app.Backend.AMQP != nil {
		syncWorker := worker.NewSyncWorker(app.Syncer, logger)
		go func() {
			err := app.Backend.AMQP.ConsumeSyncRequests(ctx, syncWorker.HandleSyncRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled - running periodic sync only")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
