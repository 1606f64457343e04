package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command with its up, down and status
// subcommands.
func MigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, true)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, false)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.MigrateDown(cmd.Context()); err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "latest migration rolled back")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, false)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, pending, err := db.MigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}
			printMigrations(cmd.OutOrStdout(), applied, pending)
			return nil
		},
	})

	return cmd
}
