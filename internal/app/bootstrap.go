package app

import (
	"context"
	"fmt"
	"os"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Application bootstraps and runs the engine.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/surogate")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, initialises logging and creates every
// service. Optional components that cannot be reached (a cluster, redis) are logged
// and left out; a configured database that cannot be opened is fatal.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.Settings == nil {
		path := cfg.ConfigPath
		if path == "" {
			var err error
			path, err = config.GetDefaultConfigPath()
			if err != nil {
				return nil, err
			}
		}
		settings, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		cfg.Settings = &settings
	}

	level := logging.ParseLevel(cfg.Settings.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(cfg.Settings.LogFormat), os.Stderr)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services exposes the initialised services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the process is signalled, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.services)
}
