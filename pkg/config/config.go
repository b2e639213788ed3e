// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// StorageBackend represents the storage implementation type.
type StorageBackend string

const (
	// StorageMemory uses in-memory storage (for development/testing).
	StorageMemory StorageBackend = "memory"
	// StorageBadger uses an embedded badger database.
	StorageBadger StorageBackend = "badger"
	// StorageRedis uses a shared Redis keyspace.
	StorageRedis StorageBackend = "redis"
)

// Config holds the span cache service configuration.
type Config struct {
	// Service identification
	ServiceName string
	Environment string // development, staging, production
	Version     string

	// Server
	HTTPPort int
	GRPCPort int

	// Storage backend
	StorageBackend StorageBackend
	BadgerPath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Cache retention budget
	CacheTTL      time.Duration
	CacheMaxItems int
	CacheMaxBytes int64

	// Observability
	OTLPEndpoint string
	LogLevel     string
	LogFormat    string // json, text

	// Tracing of the cache service itself
	TracingEnabled  bool
	TracingSampling float64
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		ServiceName: serviceName,
		Environment: getEnv("SPANCACHE_ENV", "development"),
		Version:     getEnv("SPANCACHE_VERSION", "dev"),

		HTTPPort: getEnvInt("SPANCACHE_HTTP_PORT", 8080),
		GRPCPort: getEnvInt("SPANCACHE_GRPC_PORT", 4317),

		StorageBackend: parseStorageBackend(getEnv("SPANCACHE_STORAGE_BACKEND", "memory")),
		BadgerPath:     getEnv("SPANCACHE_BADGER_PATH", "/var/lib/spancache"),
		RedisAddr:      getEnv("SPANCACHE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("SPANCACHE_REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("SPANCACHE_REDIS_DB", 0),

		CacheTTL:      getEnvDuration("SPANCACHE_CACHE_TTL", 10*time.Minute),
		CacheMaxItems: getEnvInt("SPANCACHE_CACHE_MAX_ITEMS", 50_000),
		CacheMaxBytes: int64(getEnvInt("SPANCACHE_CACHE_MAX_BYTES", 32*1024*1024)),

		OTLPEndpoint: getEnv("SPANCACHE_OTLP_ENDPOINT", ""),
		LogLevel:     getEnv("SPANCACHE_LOG_LEVEL", "info"),
		LogFormat:    getEnv("SPANCACHE_LOG_FORMAT", "json"),

		TracingEnabled:  getEnvBool("SPANCACHE_TRACING_ENABLED", false),
		TracingSampling: getEnvFloat("SPANCACHE_TRACING_SAMPLING", 1.0),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

func parseStorageBackend(s string) StorageBackend {
	switch s {
	case "badger":
		return StorageBadger
	case "redis":
		return StorageRedis
	default:
		return StorageMemory
	}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
