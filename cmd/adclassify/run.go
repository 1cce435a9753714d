package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/adclassify/internal/domain"
)

var (
	runClient string
	runDate   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify one client once and print its snapshot as JSON",
	Long: `Runs the full pipeline for one client: load records, aggregate,
classify, detect alerts, persist and notify. The client's run lock is
honoured, so this fails if the scheduled worker is running the same
client and date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDay(runDate, time.Now())
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.worker.RunClient(cmd.Context(), runClient, date)
		if err != nil {
			return err
		}

		return printJSON(res.Snapshot)
	},
}

// parseDay parses a YYYY-MM-DD flag. An empty value means the UTC day of now.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return domain.Day(now), nil
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}
