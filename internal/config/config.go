package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	validBackends = []string{"memory", "json", "sqlite"}
	validGateways = []string{"none", "demo", "plaid", "ofx"}
	validLevels   = []string{"debug", "info", "warn", "error"}
	validFormats  = []string{"text", "json"}
	validPlaidEnv = []string{"sandbox", "production"}
)

type Config struct {
	// HTTP Server
	Port         string
	FrontendURL  string
	RateLimitRPM int

	// Storage
	DataBackend      string
	DataDir          string
	SQLiteDBPath     string
	CategorySeedFile string

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string

	// Bank sync
	BankGateway       string
	PlaidClientID     string
	PlaidSecret       string
	PlaidEnv          string
	PlaidAccessToken  string
	PlaidLookbackDays int
	OFXDir            string

	// Sync worker
	SyncInterval     time.Duration
	SyncMaxRetries   int
	SyncRetryBackoff time.Duration
	SyncConcurrency  int

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 120),

		DataBackend:      getEnv("DATA_BACKEND", "json"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),
		CategorySeedFile: getEnv("CATEGORY_SEED_FILE", ""),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "sync_requests"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "sync_events"),

		BankGateway:       getEnv("BANK_GATEWAY", "demo"),
		PlaidClientID:     getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:       getEnv("PLAID_SECRET", ""),
		PlaidEnv:          getEnv("PLAID_ENV", "sandbox"),
		PlaidAccessToken:  getEnv("PLAID_ACCESS_TOKEN", ""),
		PlaidLookbackDays: getEnvInt("PLAID_LOOKBACK_DAYS", 30),
		OFXDir:            getEnv("OFX_DIR", "./data/statements"),

		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
		SyncMaxRetries:   getEnvInt("SYNC_MAX_RETRIES", 3),
		SyncRetryBackoff: getEnvDuration("SYNC_RETRY_BACKOFF", time.Second),
		SyncConcurrency:  getEnvInt("SYNC_CONCURRENCY", 4),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.FrontendURL != "" {
		if u, err := url.Parse(c.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid frontend URL '%s': must be an absolute URL", c.FrontendURL))
		}
	}
	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	switch c.DataBackend {
	case "json":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using json backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}
	if c.CategorySeedFile != "" {
		if _, err := os.Stat(c.CategorySeedFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("category seed file does not exist: %s", c.CategorySeedFile))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate bank gateway
	if !slices.Contains(validGateways, c.BankGateway) {
		errors = append(errors, fmt.Sprintf("invalid bank gateway '%s': must be one of %v", c.BankGateway, validGateways))
	}
	switch c.BankGateway {
	case "plaid":
		if c.PlaidClientID == "" {
			errors = append(errors, "PLAID_CLIENT_ID is required when using plaid gateway")
		}
		if c.PlaidSecret == "" {
			errors = append(errors, "PLAID_SECRET is required when using plaid gateway")
		}
		if !slices.Contains(validPlaidEnv, c.PlaidEnv) {
			errors = append(errors, fmt.Sprintf("invalid Plaid environment '%s': must be one of %v", c.PlaidEnv, validPlaidEnv))
		}
		if c.PlaidLookbackDays < 1 || c.PlaidLookbackDays > 730 {
			errors = append(errors, fmt.Sprintf("invalid Plaid lookback %d: must be between 1 and 730 days", c.PlaidLookbackDays))
		}
	case "ofx":
		if c.OFXDir == "" {
			errors = append(errors, "OFX_DIR is required when using ofx gateway")
		}
	}

	// Validate worker configuration
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncMaxRetries < 0 || c.SyncMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be between 0 and 10", c.SyncMaxRetries))
	}
	if c.SyncRetryBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync retry backoff %v: must be positive", c.SyncRetryBackoff))
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be between 1 and 64", c.SyncConcurrency))
	}

	// Google Sheets export needs credentials once a spreadsheet is named
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
