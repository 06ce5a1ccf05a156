// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sirmadman/gatekeeper/internal/store/postgres"
)

// NewCleanupCmd creates the cleanup subcommand.
func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired remember-me tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database URL is required")
			}

			pool, err := postgres.NewPool(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := postgres.NewTokenRepository(pool).DeleteExpired(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Removed %d expired trust tokens\n", n)
			return nil
		},
	}
}
