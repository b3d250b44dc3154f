// Package config provides 12-factor configuration management for blockforge.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Engine: expansion behaviour (custom data projection, diagnostic
//     re-render, leaked key reclamation, open context mode)
//   - Registry: declarative definition discovery
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	eng := engine.New(engine.WithConfig(cfg.Engine))
//
// Environment Variables:
//   - BB_PROCESS_CUSTOM_DATA, BB_DIAGNOSTIC_RETRY, BB_RECLAIM_LEAKS, BB_OPEN_MODE
//   - BB_DEFINITIONS_DIR, BB_DEFINITIONS_PATTERN
//   - LOG_LEVEL, LOG_DEV
package config
