package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invergent-ai/surogate-studio-sub002/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath is the directory holding config.yaml.
var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration engine",
	Long: `Starts the orchestration engine: connects to every configured cluster, watches
their nodes, and serves the HTTP API with health, metrics, zone listing and
websocket status streams.

Configuration:
  surogate loads config.yaml from ~/.config/surogate unless --config-path points
  to another directory. Environment variables in the file are expanded.

  Clusters that cannot be reached at startup are skipped and reported; the
  engine keeps running with the rest.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := app.NewConfig(serveDebug, serveConfigPath)
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default ~/.config/surogate)")
}
