package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Session store backends
const (
	SessionStoreMemory   = "memory"
	SessionStoreDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Connector configuration
	ConnectorBaseURL string
	ConnectorTimeout time.Duration

	// AWS configuration
	AWSRegion    string
	SessionTable string
	EventBusName string

	// Session store backend: memory or dynamodb
	SessionStoreKind string

	// Staging tunables
	MaxHistory    int
	AutosaveDelay time.Duration

	// Lambda configuration
	IsLambda bool

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Rate limiting
	RequestsPerMinute       int
	CommitRequestsPerMinute int

	// Feature flags
	EnableCORS bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		ConnectorBaseURL: getEnv("CONNECTOR_BASE_URL", "http://localhost:5000/api"),
		ConnectorTimeout: time.Duration(getEnvInt("CONNECTOR_TIMEOUT_MS", 30000)) * time.Millisecond,

		AWSRegion:    getEnv("AWS_REGION", "us-west-2"),
		SessionTable: getEnv("SESSION_TABLE", "catalog-staging-sessions"),
		EventBusName: getEnv("EVENT_BUS_NAME", ""),

		SessionStoreKind: getEnv("SESSION_STORE", SessionStoreMemory),

		MaxHistory:    getEnvInt("MAX_HISTORY", 50),
		AutosaveDelay: time.Duration(getEnvInt("AUTOSAVE_DELAY_MS", 5000)) * time.Millisecond,

		IsLambda: getEnvBool("IS_LAMBDA", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "catalog-staging"),

		RequestsPerMinute:       getEnvInt("REQUESTS_PER_MINUTE", 300),
		CommitRequestsPerMinute: getEnvInt("COMMIT_REQUESTS_PER_MINUTE", 10),

		EnableCORS: getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.ConnectorBaseURL == "" {
		return fmt.Errorf("CONNECTOR_BASE_URL is required")
	}
	switch c.SessionStoreKind {
	case SessionStoreMemory, SessionStoreDynamoDB:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q",
			SessionStoreMemory, SessionStoreDynamoDB, c.SessionStoreKind)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.SessionStoreKind == SessionStoreDynamoDB && c.SessionTable == "" {
			return fmt.Errorf("SESSION_TABLE is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
