// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sirmadman/gatekeeper/internal/store/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations (destructive)")
	return cmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	databaseURL := cfg.Database.URL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (config file or DATABASE_URL)")
	}

	migrator, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }() //nolint:errcheck // best effort on exit

	if down {
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed successfully")
		return nil
	}

	cmd.Println("Running migrations...")
	if err := migrator.Up(); err != nil {
		return err
	}

	ver, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if dirty {
		return oops.Code("MIGRATION_DIRTY").
			With("version", ver).
			Errorf("migration left the schema dirty at version %d", ver)
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", ver)
	return nil
}
