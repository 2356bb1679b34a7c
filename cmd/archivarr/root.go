package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mescon/Archivarr/internal/config"
	"github.com/mescon/Archivarr/internal/logger"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "archivarr",
		Short: "Reconcile and migrate archive status against an asset management API",
		Long: `Archivarr scans collections of a remote asset management system, reconciles each
asset's archive status with what is actually on the archive storage and migrates
assets between storages.

Every command is a dry run unless --live is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("config", "", "YAML config file (env: ARCHIVARR_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error (env: ARCHIVARR_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-dir", "", "Directory for the rotating log file (env: ARCHIVARR_LOG_DIR)")
	rootCmd.PersistentFlags().String("api-url", "", "Base URL of the asset API (env: ARCHIVARR_API_URL)")
	rootCmd.PersistentFlags().String("api-token", "", "API token (env: ARCHIVARR_API_TOKEN)")
	rootCmd.PersistentFlags().String("app-id", "", "App-ID header value (env: ARCHIVARR_APP_ID)")

	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the configuration for cmd and sets up logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.SetLevel(cfg.LogLevel)
	if err := logger.Init(cfg.LogDir); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Archivarr %s\n", config.Version)
		},
	}
}
