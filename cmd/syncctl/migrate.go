package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the server schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if cfg.Storage.DB.DSN == "" {
				return errNoDatabase
			}

			db, err := e.connectDB(cmd.Context(), cfg.Storage.DB, e.logger)
			if err != nil {
				return fmt.Errorf("postgres connection error: %w", err)
			}
			defer db.Close()

			if err = db.Migrate(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
