// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sirmadman/gatekeeper/internal/config"
	"github.com/sirmadman/gatekeeper/internal/gate"
	"github.com/sirmadman/gatekeeper/internal/identity"
	"github.com/sirmadman/gatekeeper/internal/store/postgres"
)

// NewUserCmd creates the user subcommand group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserActivateCmd(true))
	cmd.AddCommand(newUserActivateCmd(false))
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		email  string
		groups []string
		perms  []string
	)

	cmd := &cobra.Command{
		Use:   "create <username> <password>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return withStores(cmd, cfg, func(g *gate.Gate, _ identity.Repository) error {
				input := gate.RegisterInput{
					Username:    args[0],
					Password:    args[1],
					Groups:      groups,
					Permissions: perms,
				}
				if email != "" {
					input.Email = &email
				}
				user, err := g.RegisterUser(cmd.Context(), input)
				if err != nil {
					return err
				}
				cmd.Printf("Created user %s (%s)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "initial group membership (repeatable)")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "initial permission grant (repeatable)")
	return cmd
}

func newUserActivateCmd(activate bool) *cobra.Command {
	use, short := "activate <username>", "Activate a user account"
	if !activate {
		use, short = "deactivate <username>", "Deactivate a user account"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return withStores(cmd, cfg, func(_ *gate.Gate, users identity.Repository) error {
				user, err := users.GetByUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if activate {
					user.Activate()
				} else {
					user.Deactivate()
				}
				if err := users.Update(cmd.Context(), user); err != nil {
					return err
				}
				cmd.Printf("User %s is now %s\n", user.Username, user.Status)
				return nil
			})
		},
	}
}

// withStores connects to the database and hands the callback a wired Gate
// and user repository, closing the pool afterwards.
func withStores(cmd *cobra.Command, cfg config.Config, fn func(g *gate.Gate, users identity.Repository) error) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required")
	}

	pool, err := postgres.NewPool(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := postgres.NewUserRepository(pool)
	g := gate.New(users, identity.NewArgon2idHasher(),
		gate.WithRBAC(postgres.NewRBACRepository(pool)),
	)
	return fn(g, users)
}
