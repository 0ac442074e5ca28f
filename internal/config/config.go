package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chainhook-relay/internal/retry"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	// HTTP listen port
	Port int

	// Shared chainhook signing secret; empty requires AllowUnsigned
	ChainhookSecret string

	// Explicit opt-in to accept unsigned deliveries (local development only)
	AllowUnsigned bool

	// Event store backend: memory or postgres
	EventStore string

	// Ring buffer size for the memory store (0 = unbounded)
	EventRetention int

	// Postgres connection string, required for the postgres store
	DatabaseURL string

	// Largest accepted webhook body in bytes
	MaxBodyBytes int64

	// Query limits for GET /events
	DefaultQueryLimit int
	MaxQueryLimit     int

	// Logging
	LogLevel  string
	LogFormat string

	// Graceful shutdown budget
	ShutdownTimeout time.Duration

	// Database connection retry
	Retry retry.Config
}

// Load returns the configuration from environment variables
func Load() *Config {
	return &Config{
		Port:              getEnvAsInt("PORT", 3001),
		ChainhookSecret:   os.Getenv("CHAINHOOK_SECRET"),
		AllowUnsigned:     getEnvAsBool("CHAINHOOK_ALLOW_UNSIGNED", false),
		EventStore:        strings.ToLower(getEnv("EVENT_STORE", StoreMemory)),
		EventRetention:    getEnvAsInt("EVENT_RETENTION", 10000),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MaxBodyBytes:      int64(getEnvAsInt("MAX_BODY_BYTES", 10<<20)),
		DefaultQueryLimit: getEnvAsInt("DEFAULT_QUERY_LIMIT", 50),
		MaxQueryLimit:     getEnvAsInt("MAX_QUERY_LIMIT", 1000),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		ShutdownTimeout:   time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		Retry: retry.Config{
			Enabled:      getEnvAsBool("RETRY_ENABLED", true),
			MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", 10),
			InitialDelay: time.Duration(getEnvAsInt("RETRY_INITIAL_DELAY_SEC", 1)) * time.Second,
			MaxDelay:     time.Duration(getEnvAsInt("RETRY_MAX_DELAY_SEC", 60)) * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ChainhookSecret == "" && !c.AllowUnsigned {
		return fmt.Errorf("CHAINHOOK_SECRET is required (set CHAINHOOK_ALLOW_UNSIGNED=true to accept unsigned deliveries)")
	}
	switch c.EventStore {
	case StoreMemory:
		if c.EventRetention < 0 {
			return fmt.Errorf("EVENT_RETENTION must not be negative")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when EVENT_STORE=postgres")
		}
	default:
		return fmt.Errorf("EVENT_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.EventStore)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.DefaultQueryLimit <= 0 || c.MaxQueryLimit < c.DefaultQueryLimit {
		return fmt.Errorf("query limits must satisfy 0 < DEFAULT_QUERY_LIMIT <= MAX_QUERY_LIMIT")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := strings.TrimPrefix(os.Getenv(key), ":") // allow PORT=:3001
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
