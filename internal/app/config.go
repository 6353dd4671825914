package app

import (
	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// ConfigPath is the directory holding config.yaml. Empty means
	// ~/.config/surogate.
	ConfigPath string

	// Settings is the loaded configuration. When set before NewApplication the file is
	// not read.
	Settings *config.Config

	// Factory builds cluster bundles; nil uses the REST factory.
	Factory cluster.Factory
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
