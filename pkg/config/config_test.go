package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treasuryops/hedgeledger/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("TELEMETRY_ENABLED", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Contains(t, cfg.DatabaseURL, "localhost") // Default is local
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.TelemetryEnabled)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/ledger")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RULEBOOK_PATH", "/etc/hedgeledger/rulebook.yaml")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://production:5432/ledger", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "/etc/hedgeledger/rulebook.yaml", cfg.RulebookPath)
	assert.True(t, cfg.TelemetryEnabled)
}
