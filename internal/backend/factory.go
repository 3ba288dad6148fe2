package backend

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/banksync"
	"fintrack/internal/banksync/demo"
	"fintrack/internal/banksync/ofx"
	"fintrack/internal/banksync/plaid"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/store"
	"fintrack/internal/store/jsonfile"
	"fintrack/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot be
// reached is logged and skipped; storage and gateway errors are fatal.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.CreateRepository(config)
	if err != nil {
		return nil, err
	}

	gateway, err := f.CreateGateway(config)
	if err != nil {
		repo.Close()
		return nil, err
	}

	result := &BackendResult{
		Repository: repo,
		Gateway:    gateway,
	}
	if linker, ok := gateway.(banksync.Linker); ok {
		result.Linker = linker
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.AMQPEventsQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without messaging",
				applog.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.AMQP = client
			result.Cleanup = client.Close
		}
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"storage", config.Type.String(),
		applog.FieldGateway, gateway.Name(),
		"amqp_enabled", result.AMQP != nil)

	return result, nil
}

// CreateRepository opens the storage backend named by config.Type.
func (f *DefaultFactory) CreateRepository(config Config) (store.Repository, error) {
	switch config.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory storage")
		return memory.New(), nil
	case JSONBackend:
		repo, err := jsonfile.New(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JSON storage: %w", err)
		}
		f.logger.Info("Initialized JSON storage", "data_directory", config.DataDirectory)
		return repo, nil
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite storage", "db_path", config.SQLiteDBPath)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateGateway builds the bank gateway named by config.Gateway.
func (f *DefaultFactory) CreateGateway(config Config) (banksync.Gateway, error) {
	switch config.Gateway {
	case NoGateway, "":
		return banksync.Disabled{}, nil
	case DemoGateway:
		return demo.New(), nil
	case PlaidGateway:
		client, err := plaid.NewClient(plaid.Config{
			ClientID:     config.PlaidClientID,
			Secret:       config.PlaidSecret,
			Environment:  config.PlaidEnv,
			AccessToken:  config.PlaidAccessToken,
			LookbackDays: config.PlaidLookbackDays,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Plaid client: %w", err)
		}
		return client, nil
	case OFXGateway:
		return ofx.NewGateway(config.OFXDir, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported bank gateway: %s", config.Gateway)
	}
}

var _ Factory = (*DefaultFactory)(nil)
