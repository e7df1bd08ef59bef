package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Monitor   MonitorConfig
	IPC       IPCConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Policy    PolicyConfig
}

// MonitorConfig holds monitor HTTP API configuration.
type MonitorConfig struct {
	Port    string `envconfig:"MONITOR_PORT" default:"9600"`
	Host    string `envconfig:"MONITOR_HOST" default:"0.0.0.0"`
	Enabled bool   `envconfig:"MONITOR_ENABLED" default:"true"`
}

// IPCConfig holds IPC engine configuration.
type IPCConfig struct {
	QueueCapacity int `envconfig:"IPC_QUEUE_CAPACITY" default:"64"`
	SpaceLimit    int `envconfig:"IPC_SPACE_LIMIT" default:"1024"`
	JournalSize   int `envconfig:"IPC_JOURNAL_SIZE" default:"4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds monitor API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PolicyConfig holds boot policy configuration.
type PolicyConfig struct {
	Path string `envconfig:"POLICY_PATH" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Port:    "9600",
			Host:    "0.0.0.0",
			Enabled: true,
		},
		IPC: IPCConfig{
			QueueCapacity: 64,
			SpaceLimit:    1024,
			JournalSize:   4096,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
