// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("defaults are valid for development", func(t *testing.T) {
		cfg := New()
		cfg.Database.URL = "postgres://localhost/netra"

		require.NoError(t, cfg.Validate())
		assert.True(t, cfg.IsDevelopment())
		assert.False(t, cfg.IsStaging())
	})

	t.Run("unknown environment fails validation", func(t *testing.T) {
		cfg := New()
		cfg.Database.URL = "postgres://localhost/netra"
		cfg.Environment = "canary"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid environment")
	})

	t.Run("k_service marker implies staging", func(t *testing.T) {
		cfg := New()
		cfg.Environment = EnvProduction
		cfg.KService = true

		assert.True(t, cfg.IsStaging())
	})

	t.Run("skip checks accepts truthy strings", func(t *testing.T) {
		for _, v := range []string{"true", "1", "yes", " TRUE "} {
			cfg := New()
			cfg.SkipStartupChecks = v
			assert.True(t, cfg.SkipChecks(), v)
		}
		for _, v := range []string{"", "false", "0", "no"} {
			cfg := New()
			cfg.SkipStartupChecks = v
			assert.False(t, cfg.SkipChecks(), v)
		}
	})

	t.Run("mock mode detected from database url", func(t *testing.T) {
		cfg := New()
		cfg.Database.URL = "postgres://mock-host/netra"
		assert.True(t, cfg.MockMode())

		cfg.Database.URL = "postgres://db.internal/netra"
		assert.False(t, cfg.MockMode())
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvVarEnvironment, "staging")
	t.Setenv(EnvVarSecretKey, "s3cr3t")
	t.Setenv(EnvVarDatabaseURL, "postgres://db/netra")
	t.Setenv(EnvVarSkipStartupChecks, "true")

	cfg := Load()

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "s3cr3t", cfg.SecretKey)
	assert.Equal(t, "postgres://db/netra", cfg.Database.URL)
	assert.True(t, cfg.SkipChecks())
	assert.True(t, cfg.IsStaging())

	// Variables left unset keep their defaults.
	assert.Equal(t, New().RedisURL, cfg.RedisURL)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("NETRA_TEST_VAR", "from-env")
	assert.Equal(t, "from-env", GetEnvOrDefault("NETRA_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("NETRA_TEST_VAR_UNSET", "fallback"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netra.yaml")
	data := []byte(`
environment: testing
secret_key: from-file
database:
  url: postgres://db/netra
llm_configs:
  openai:
    model: gpt-4
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "testing", cfg.Environment)
	assert.Equal(t, "from-file", cfg.SecretKey)
	assert.Equal(t, "gpt-4", cfg.LLMConfigs["openai"].Model)
	require.NoError(t, cfg.Validate())
}
