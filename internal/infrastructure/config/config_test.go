package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Monitor config
	assert.Equal(t, "9600", cfg.Monitor.Port)
	assert.Equal(t, "0.0.0.0", cfg.Monitor.Host)
	assert.True(t, cfg.Monitor.Enabled)

	// IPC config
	assert.Equal(t, 64, cfg.IPC.QueueCapacity)
	assert.Equal(t, 1024, cfg.IPC.SpaceLimit)
	assert.Equal(t, 4096, cfg.IPC.JournalSize)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"MONITOR_PORT":       "9700",
		"MONITOR_HOST":       "127.0.0.1",
		"IPC_QUEUE_CAPACITY": "128",
		"IPC_SPACE_LIMIT":    "64",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"POLICY_PATH":        "/etc/ferrous/policy.yaml",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9700", cfg.Monitor.Port)
	assert.Equal(t, "127.0.0.1", cfg.Monitor.Host)
	assert.Equal(t, 128, cfg.IPC.QueueCapacity)
	assert.Equal(t, 64, cfg.IPC.SpaceLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "/etc/ferrous/policy.yaml", cfg.Policy.Path)
}
