package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// RedisURL is the connection string for the shared store
	// (redis://[user:pass@]host:port/db).
	RedisURL string

	// OriginSecret keys the daily-rotated origin hash. Raw client
	// addresses are never stored.
	OriginSecret string

	// Message bounds. Bodies outside [MessageMinLen, MessageMaxLen] are
	// rejected before the store is touched.
	MessageMinLen int
	MessageMaxLen int

	// DisplayLimit caps how many messages a single fetch returns.
	DisplayLimit int

	// RateLimitCap is the number of posts one session may make per
	// RateLimitWindow. FloodCap is the per-origin-address cap over the
	// same window; it catches multiple sessions behind one address.
	RateLimitCap    int
	FloodCap        int
	RateLimitWindow time.Duration

	// SoftCap is the message count that triggers gradual eviction of the
	// oldest messages; HardCap is never exceeded after any append returns.
	SoftCap int
	HardCap int

	// CleanupBatchSize bounds how many messages one emergency cleanup
	// pass may evict.
	CleanupBatchSize int

	// MemoryBudget is the Redis used_memory ceiling in bytes above which
	// appends are refused. Zero disables the check.
	MemoryBudget int64

	// MessageTTL is how long a message survives; CleanupInterval is the
	// minimum spacing between expiry sweeps.
	MessageTTL      time.Duration
	CleanupInterval time.Duration

	// TokenLifetime is how long an anti-forgery token stays valid.
	TokenLifetime time.Duration

	// PresenceTTL is the absolute expiry on the whole presence set;
	// ActivityWindow is the tighter window a session must have
	// heartbeated within to count as online.
	PresenceTTL    time.Duration
	ActivityWindow time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		OriginSecret: getEnv("ORIGIN_SECRET", "dev-only-salt"),

		MessageMinLen: getEnvInt("MESSAGE_MIN_LEN", 1),
		MessageMaxLen: getEnvInt("MESSAGE_MAX_LEN", 500),
		DisplayLimit:  getEnvInt("DISPLAY_LIMIT", 50),

		RateLimitCap:    getEnvInt("RATE_LIMIT_CAP", 3),
		FloodCap:        getEnvInt("FLOOD_CAP", 10),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		SoftCap:          getEnvInt("SOFT_CAP", 5000),
		HardCap:          getEnvInt("HARD_CAP", 10000),
		CleanupBatchSize: getEnvInt("CLEANUP_BATCH_SIZE", 1000),
		MemoryBudget:     getEnvInt64("MEMORY_BUDGET_BYTES", 64<<20),

		MessageTTL:      getEnvDuration("MESSAGE_TTL", 24*time.Hour),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),

		TokenLifetime: getEnvDuration("TOKEN_LIFETIME", time.Hour),

		PresenceTTL:    getEnvDuration("PRESENCE_TTL", 10*time.Minute),
		ActivityWindow: getEnvDuration("ACTIVITY_WINDOW", 5*time.Minute),
	}

	if cfg.Env == "production" {
		if os.Getenv("REDIS_URL") == "" {
			panic("REDIS_URL is required in production")
		}
		if os.Getenv("ORIGIN_SECRET") == "" {
			panic("ORIGIN_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
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
