// Package cli provides common initialization utilities shared by
// cmd/fintrack, cmd/fintrack-worker and cmd/fintrack-cli.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// SetupLogger initializes structured logging from LOG_LEVEL and LOG_FORMAT
// and installs it as the default logger.
func SetupLogger(cfg *config.Config) *applog.Logger {
	lc := applog.DefaultConfig()
	if cfg != nil {
		if level, err := applog.ParseLevel(cfg.LogLevel); err == nil {
			lc.Level = level
		}
		lc.Format = cfg.LogFormat
	}
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App bundles the collaborators every binary needs.
type App struct {
	Config  *config.Config
	Logger  *applog.Logger
	Backend *backend.BackendResult
	Tracker *services.Tracker
	Syncer  *services.BankSyncer
	// Caches expires memoized read models; the server starts its cleanup.
	Caches  *cache.Manager
}

// summaryTTL bounds how long a memoized period summary is served.
const summaryTTL = 10 * time.Minute

// Bootstrap wires the backend, opens the tracker and builds the bank
// syncer. The caller must Close the returned App.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	var seed []core.Category
	if cfg.CategorySeedFile != "" {
		if seed, err = core.LoadCategorySeed(cfg.CategorySeedFile); err != nil {
			res.Repository.Close()
			closeCleanup(res)
			return nil, fmt.Errorf("load category seed: %w", err)
		}
	}

	tracker, err := services.Open(ctx, res.Repository, services.TrackerOptions{
		SeedCategories:  seed,
		SummaryCacheTTL: summaryTTL,
		Logger:          logger,
	})
	if err != nil {
		res.Repository.Close()
		closeCleanup(res)
		return nil, fmt.Errorf("open tracker: %w", err)
	}

	var publisher services.EventPublisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}
	syncer := services.NewBankSyncer(tracker, res.Gateway, publisher, SyncerConfig(cfg), logger)

	caches := cache.NewManager()
	if c := tracker.SummaryCache(); c != nil {
		caches.Register("summaries", c)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Backend: res,
		Tracker: tracker,
		Syncer:  syncer,
		Caches:  caches,
	}, nil
}

// SyncerConfig maps the SYNC_* settings onto a BankSyncerConfig.
func SyncerConfig(cfg *config.Config) services.BankSyncerConfig {
	sc := services.DefaultBankSyncerConfig()
	if cfg.SyncInterval > 0 {
		sc.Interval = cfg.SyncInterval
	}
	sc.MaxRetries = cfg.SyncMaxRetries
	if cfg.SyncRetryBackoff > 0 {
		sc.RetryBackoff = cfg.SyncRetryBackoff
	}
	if cfg.SyncConcurrency > 0 {
		sc.Concurrency = cfg.SyncConcurrency
	}
	return sc
}

// Close stops the syncer loop and releases the tracker and backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Caches != nil {
		a.Caches.Stop()
	}
	if a.Syncer != nil && a.Syncer.IsRunning() {
		errs = append(errs, a.Syncer.Stop(ctx))
	}
	if a.Tracker != nil {
		errs = append(errs, a.Tracker.Close())
	}
	errs = append(errs, closeCleanup(a.Backend))
	return errors.Join(errs...)
}

func closeCleanup(res *backend.BackendResult) error {
	if res == nil || res.Cleanup == nil {
		return nil
	}
	return res.Cleanup()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
