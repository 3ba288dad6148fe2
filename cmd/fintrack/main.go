package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg).WithComponent(applog.ComponentApp)

	app, err := cli.Bootstrap(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}

	opts := apphttp.Options{
		Tracker:      app.Tracker,
		Syncer:       app.Syncer,
		Linker:       app.Backend.Linker,
		FrontendURL:  cfg.FrontendURL,
		RateLimitRPM: cfg.RateLimitRPM,
		Version:      version,
		Logger:       logger,
	}
	if app.Backend.AMQP != nil {
		opts.Requester = app.Backend.AMQP
	}
	srv := apphttp.NewServer(":"+cfg.Port, opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := app.Close(ctx); err != nil {
			logger.Error("Failed to close application", applog.FieldError, err)
		}
	})

	app.Caches.StartCleanup(time.Minute)

	// With a broker the worker owns the periodic sync.
	if app.Backend.AMQP == nil && cfg.BankGateway != "none" {
		if err := app.Syncer.Start(ctx); err != nil {
			logger.Error("Failed to start bank syncer", applog.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"gateway", cfg.BankGateway,
		"amqp", cfg.AMQPEnabled(),
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		_ = app.Close(context.Background())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
