package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/adclassify/internal/config"
	"github.com/ignite/adclassify/internal/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adclassify",
	Short: "Ad entity classification and alerting engine",
	Long: `adclassify aggregates daily ad performance, classifies every account,
campaign, adset and ad on four axes, and raises de-duplicated alerts.

Run "adclassify serve" for the scheduled worker and ops endpoints, or
"adclassify run" for a one-shot run of a single client.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromEnv(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to the YAML config file")

	runCmd.Flags().StringVar(&runClient, "client", "", "Client ID to run (required)")
	runCmd.Flags().StringVar(&runDate, "date", "", "Run date as YYYY-MM-DD (default: today, UTC)")
	_ = runCmd.MarkFlagRequired("client")

	syncCmd.Flags().StringVar(&syncClient, "client", "", "Client ID to copy (required)")
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "First day to copy as YYYY-MM-DD (default: 14 days before --to)")
	syncCmd.Flags().StringVar(&syncTo, "to", "", "Last day to copy as YYYY-MM-DD (default: today, UTC)")
	_ = syncCmd.MarkFlagRequired("client")

	configSetCmd.Flags().StringVarP(&configFile, "file", "f", "", "JSON document to store (default: stdin)")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
