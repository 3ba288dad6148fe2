package backend

import (
	"fmt"

	"fintrack/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	gatewayType := GatewayType(appConfig.BankGateway)
	if !gatewayType.IsValid() {
		return Config{}, fmt.Errorf("invalid bank gateway in config: %s", appConfig.BankGateway)
	}

	return Config{
		Type:          backendType,
		DataDirectory: appConfig.DataDir,
		SQLiteDBPath:  appConfig.SQLiteDBPath,

		Gateway:           gatewayType,
		PlaidClientID:     appConfig.PlaidClientID,
		PlaidSecret:       appConfig.PlaidSecret,
		PlaidEnv:          appConfig.PlaidEnv,
		PlaidAccessToken:  appConfig.PlaidAccessToken,
		PlaidLookbackDays: appConfig.PlaidLookbackDays,
		OFXDir:            appConfig.OFXDir,

		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
		AMQPEventsQueue: appConfig.AMQPEventsQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case JSONBackend:
		if c.DataDirectory == "" {
			return fmt.Errorf("data directory is required for json backend")
		}
	case MemoryBackend:
		// Nothing to configure
	}

	if !c.Gateway.IsValid() {
		return fmt.Errorf("invalid bank gateway: %s", c.Gateway)
	}
	switch c.Gateway {
	case PlaidGateway:
		if c.PlaidClientID == "" || c.PlaidSecret == "" {
			return fmt.Errorf("Plaid client ID and secret are required for plaid gateway")
		}
	case OFXGateway:
		if c.OFXDir == "" {
			return fmt.Errorf("statement directory is required for ofx gateway")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, JSONBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
