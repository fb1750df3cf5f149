package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gameserver-lifecycle",
	Short:         "Start, stop and monitor game servers running in tmux sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv("CONFIG_PATH", configPath)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to $CONFIG_PATH or ./configs/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, statusCmd, portsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initialises the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	_, err := logging.Init(cfg.Logging)
	return err
}
