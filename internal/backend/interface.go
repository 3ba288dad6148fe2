package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/banksync"
	"fintrack/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired collaborators and an optional cleanup
// function. The repository is closed by the tracker that owns it; Cleanup
// releases everything else.
type BackendResult struct {
	Repository store.Repository
	Gateway    banksync.Gateway
	// Linker is nil when the gateway has no token exchange flow.
	Linker banksync.Linker
	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Storage
	Type          BackendType
	DataDirectory string
	SQLiteDBPath  string

	// Bank gateway
	Gateway           GatewayType
	PlaidClientID     string
	PlaidSecret       string
	PlaidEnv          string
	PlaidAccessToken  string
	PlaidLookbackDays int
	OFXDir            string

	// AMQP is optional
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string
}

// BackendType represents the type of storage backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	JSONBackend   BackendType = "json"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, JSONBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

// GatewayType selects the bank sync gateway.
type GatewayType string

const (
	NoGateway    GatewayType = "none"
	DemoGateway  GatewayType = "demo"
	PlaidGateway GatewayType = "plaid"
	OFXGateway   GatewayType = "ofx"
)

func (gt GatewayType) String() string {
	return string(gt)
}

func (gt GatewayType) IsValid() bool {
	switch gt {
	case NoGateway, DemoGateway, PlaidGateway, OFXGateway:
		return true
	default:
		return false
	}
}
