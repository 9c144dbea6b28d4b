// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Known environments. Anything else is a configuration error.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// LLMConfig configures one model provider.
type LLMConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// DatabaseConfig tunes the primary database.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	Interval             time.Duration `yaml:"interval" default:"30s"`
	PoolUsageWarning     float64       `yaml:"pool_usage_warning" default:"0.8"`
	PoolUsageCritical    float64       `yaml:"pool_usage_critical" default:"0.95"`
	QueryLatencyWarning  float64       `yaml:"query_latency_warning_ms" default:"500"`
	QueryLatencyCritical float64       `yaml:"query_latency_critical_ms" default:"2000"`
}

// DegradationConfig tunes the degradation manager.
type DegradationConfig struct {
	RefreshInterval  time.Duration `yaml:"refresh_interval" default:"30s"`
	MinimalThreshold float64       `yaml:"minimal_threshold" default:"0.5"`
}

// Config is the process configuration. Fields map 1:1 to environment
// variables via LoadFromEnv; YAML files are supported for local
// development.
type Config struct {
	Environment       string               `yaml:"environment"`
	KService          bool                 `yaml:"k_service"`
	SecretKey         string               `yaml:"secret_key"`
	SkipStartupChecks string               `yaml:"skip_startup_checks"`
	Database          DatabaseConfig       `yaml:"database"`
	RedisURL          string               `yaml:"redis_url"`
	ClickHouseURL     string               `yaml:"clickhouse_url"`
	AnthropicAPIKey   string               `yaml:"anthropic_api_key"`
	LLMConfigs        map[string]LLMConfig `yaml:"llm_configs"`
	Health            HealthConfig         `yaml:"health"`
	Degradation       DegradationConfig    `yaml:"degradation"`
	MetricsPort       int                  `yaml:"metrics_port" default:"9090"`
}

// New returns a config with defaults applied.
func New() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Health: HealthConfig{
			Interval:             30 * time.Second,
			PoolUsageWarning:     0.8,
			PoolUsageCritical:    0.95,
			QueryLatencyWarning:  500,
			QueryLatencyCritical: 2000,
		},
		Degradation: DegradationConfig{
			RefreshInterval:  30 * time.Second,
			MinimalThreshold: 0.5,
		},
		LLMConfigs:  make(map[string]LLMConfig),
		MetricsPort: 9090,
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path) // #nosec G304 - config path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid environment: %q", c.Environment)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	return nil
}

// IsStaging reports whether the process runs in staging, either via the
// explicit environment setting or the platform service marker.
func (c *Config) IsStaging() bool {
	return c.Environment == EnvStaging || c.KService
}

// IsDevelopment reports whether defaults are permitted.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// IsProduction reports whether the strictest check policies apply.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SkipChecks reports whether startup checks are bypassed entirely.
func (c *Config) SkipChecks() bool {
	switch strings.ToLower(strings.TrimSpace(c.SkipStartupChecks)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// MockMode reports whether the database URL points at a mock store.
func (c *Config) MockMode() bool {
	return strings.Contains(strings.ToLower(c.Database.URL), "mock")
}
