package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the server reads from the environment.
// Deployment targets inject plain env vars and nothing else.
type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DefaultStoreID string

	SweepInterval time.Duration
	PendingMaxAge time.Duration
	StatsCacheTTL time.Duration

	MetricsNamespace string
}

// Load reads configuration from the environment, applying defaults for
// anything unset. DATABASE_URL empty means the in-memory store; REDIS_ADDR
// empty means no stats cache.
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DefaultStoreID: getEnv("DEFAULT_STORE_ID", "main-store"),

		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
		PendingMaxAge: time.Duration(getEnvInt("PENDING_MAX_AGE_HOURS", 3)) * time.Hour,
		StatsCacheTTL: time.Duration(getEnvInt("STATS_CACHE_TTL_SECONDS", 15)) * time.Second,

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "salestrack"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
