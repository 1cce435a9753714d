package main

import (
	"github.com/spf13/cobra"

	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/repository/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := postgres.Migrate(cmd.Context(), db)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info("schema up to date")
			return nil
		}
		for _, name := range applied {
			logger.Info("migration applied", "name", name)
		}
		return nil
	},
}
