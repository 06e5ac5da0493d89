package main

import (
	"database/sql"
	"fmt"

	"smsrelay/internal/migrations"
	"smsrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

func init() {
	migrateCmd.Flags().String("db", "", "Database file (defaults to database.path from the config)")
	migrateCmd.Flags().Bool("list", false, "List embedded migrations without applying them")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the failure queue database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if list, _ := cmd.Flags().GetBool("list"); list {
			names, err := migrations.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		}

		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbPath = cfg.Database.Path
		}
		if err := security.ValidateFilePath(dbPath); err != nil {
			return err
		}

		db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		applied, err := migrations.Apply(cmd.Context(), db)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "Schema is up to date")
			return nil
		}
		for _, version := range applied {
			fmt.Fprintf(out, "Applied %s\n", version)
		}
		return nil
	},
}
