// Package config provides 12-factor configuration management for the kernel.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Monitor: monitor HTTP API settings (port, host, enabled)
//   - IPC: queue capacity, capability space limit, event journal size
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting for the monitor API
//   - Policy: path to the YAML boot policy
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Monitor on %s:%s\n", cfg.Monitor.Host, cfg.Monitor.Port)
//
// Environment Variables:
//   - MONITOR_PORT, MONITOR_HOST, MONITOR_ENABLED
//   - IPC_QUEUE_CAPACITY, IPC_SPACE_LIMIT, IPC_JOURNAL_SIZE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - POLICY_PATH
package config
