package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/blockforge/internal/macro"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig
	Registry RegistryConfig
	Logging  LogConfig
}

// EngineConfig holds expansion engine behaviour.
type EngineConfig struct {
	ProcessCustomData bool `envconfig:"BB_PROCESS_CUSTOM_DATA" default:"true"`
	DiagnosticRetry   bool `envconfig:"BB_DIAGNOSTIC_RETRY" default:"true"`
	ReclaimLeaks      bool `envconfig:"BB_RECLAIM_LEAKS" default:"true"`
	OpenMode          bool `envconfig:"BB_OPEN_MODE" default:"false"`
}

// RegistryConfig holds where declarative definitions are loaded from.
type RegistryConfig struct {
	DefinitionsDir     string `envconfig:"BB_DEFINITIONS_DIR" default:""`
	DefinitionsPattern string `envconfig:"BB_DEFINITIONS_PATTERN" default:"**/*.{yaml,yml,toml}"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	Output      string `envconfig:"LOG_OUTPUT" default:"stderr"`
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
		Engine: EngineConfig{
			ProcessCustomData: true,
			DiagnosticRetry:   true,
			ReclaimLeaks:      true,
			OpenMode:          false,
		},
		Registry: RegistryConfig{
			DefinitionsPattern: macro.DefaultPattern,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      "stderr",
		},
	}
}
