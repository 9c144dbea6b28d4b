// internal/config/env.go
package config

import (
	"os"
	"strconv"
)

// Environment variables recognized by the resilience stack.
const (
	EnvVarEnvironment       = "ENVIRONMENT"
	EnvVarKService          = "K_SERVICE"
	EnvVarSecretKey         = "SECRET_KEY"
	EnvVarDatabaseURL       = "DATABASE_URL"
	EnvVarRedisURL          = "REDIS_URL"
	EnvVarClickHouseURL     = "CLICKHOUSE_URL"
	EnvVarAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	EnvVarSkipStartupChecks = "SKIP_STARTUP_CHECKS"
)

// LoadFromEnv overlays environment variables onto cfg. Unset variables
// leave the existing values in place.
func LoadFromEnv(cfg *Config) {
	cfg.Environment = GetEnvOrDefault(EnvVarEnvironment, cfg.Environment)
	if os.Getenv(EnvVarKService) != "" {
		cfg.KService = true
	}
	cfg.SecretKey = GetEnvOrDefault(EnvVarSecretKey, cfg.SecretKey)
	cfg.Database.URL = GetEnvOrDefault(EnvVarDatabaseURL, cfg.Database.URL)
	cfg.RedisURL = GetEnvOrDefault(EnvVarRedisURL, cfg.RedisURL)
	cfg.ClickHouseURL = GetEnvOrDefault(EnvVarClickHouseURL, cfg.ClickHouseURL)
	cfg.AnthropicAPIKey = GetEnvOrDefault(EnvVarAnthropicAPIKey, cfg.AnthropicAPIKey)
	cfg.SkipStartupChecks = GetEnvOrDefault(EnvVarSkipStartupChecks, cfg.SkipStartupChecks)
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.MetricsPort = p
		}
	}
}

// Load builds a config from defaults plus environment variables.
func Load() *Config {
	cfg := New()
	LoadFromEnv(cfg)
	return cfg
}

// GetEnvOrDefault returns an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
