package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/Upchuck/internal/adapter/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps must be >= 1, got %d", migrateSteps)
		}
		if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version and embedded migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := printVersion(cmd); err != nil {
			return err
		}
		files, err := postgres.MigrationFiles()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), "  "+f)
		}
		return nil
	},
}

func printVersion(cmd *cobra.Command) error {
	v, err := postgres.MigrationVersion(cmd.Context(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
