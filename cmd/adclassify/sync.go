package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/engine"
	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/snowflake"
	"github.com/ignite/adclassify/internal/storage"
)

var (
	syncClient string
	syncFrom   string
	syncTo     string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy a client's daily records from Snowflake into DynamoDB",
	Long: `Reads the client's daily rows from the warehouse and writes them to
the DynamoDB table, overwriting any record for the same entity and day.
Use it to backfill clients whose runs read from DynamoDB.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Snowflake.Enabled {
			return errors.New("snowflake is not configured")
		}
		now := time.Now()
		to, err := parseDay(syncTo, now)
		if err != nil {
			return err
		}
		from := to.AddDate(0, 0, -(engine.HistoryDays - 1))
		if syncFrom != "" {
			if from, err = parseDay(syncFrom, now); err != nil {
				return err
			}
		}
		if from.After(to) {
			return fmt.Errorf("--from %s is after --to %s", syncFrom, syncTo)
		}

		ctx := cmd.Context()
		warehouse, err := snowflake.NewClient(snowflake.ConfigFrom(cfg.Snowflake))
		if err != nil {
			return err
		}
		defer warehouse.Close()

		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}

		records, err := warehouse.ListDailyRecords(ctx, syncClient, from, to)
		if err != nil {
			return err
		}
		if err := store.PutDailyRecords(ctx, records); err != nil {
			return err
		}
		logger.Info("daily records synced",
			"client_id", syncClient,
			"from", from.Format(domain.DateLayout),
			"to", to.Format(domain.DateLayout),
			"records", len(records),
		)
		return nil
	},
}
