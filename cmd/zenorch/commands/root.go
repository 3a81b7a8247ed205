// Package commands holds the zenorch command line.
package commands

import (
	"context"

	"github.com/pbinitiative/zenorchestrator/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the root command with ctx, which is canceled on SIGTERM.
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zenorch",
		Short: "ZenOrchestrator process orchestration engine",
		Long: `ZenOrchestrator runs process definitions written in YAML. Processes are
driven by external task workers, messages, timers and errors, and are stored
in memory or in a SQLite database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (defaults to CONFIG_FILE or ./conf.yaml)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newValidateCommand())
	return rootCmd
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.InitConfig(), nil
}
