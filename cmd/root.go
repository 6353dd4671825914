package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates the configuration could not be loaded or is invalid.
	ExitCodeConfig = 2
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "surogate",
	Short: "Multi-cluster orchestration engine for applications, models, databases and jobs",
	Long: `surogate places workloads on Kubernetes clusters grouped in zones, applies
them with convergence-checked tasks and streams their live status to subscribers.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic code on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "surogate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		return ExitCodeConfig
	}
	var validationErrs config.ValidationErrors
	if errors.As(err, &validationErrs) {
		return ExitCodeConfig
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
