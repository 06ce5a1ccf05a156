// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sirmadman/gatekeeper/internal/config"
	"github.com/sirmadman/gatekeeper/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Gatekeeper CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Gatekeeper - authentication and authorization toolkit",
		Long: `Gatekeeper manages users, permission graphs, login throttling,
remember-me tokens, and named access policies backed by PostgreSQL.`,
		// main logs the error itself, with oops context when present.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewCleanupCmd())

	return cmd
}

// loadConfig merges defaults, the optional config file, and the command's
// flags, then installs the configured logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	logging.SetDefault("gatekeeper", version, cfg.Log.Format)
	return cfg, nil
}
