package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/repository/postgres"
	"github.com/ignite/adclassify/internal/service/engineconfig"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or replace a client's engine config",
}

var configGetCmd = &cobra.Command{
	Use:   "get CLIENT_ID",
	Short: "Print the effective engine config for a client",
	Long: `Prints the config the engine would use for the client. A client without
a stored config gets the defaults, which are stored on first access.
Fields that fell back to their defaults are listed on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := configService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		ec, fallbacks, err := svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, f := range fallbacks {
			fmt.Fprintf(os.Stderr, "warning: %s is invalid, using default\n", f)
		}
		return printJSON(ec)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set CLIENT_ID",
	Short: "Validate and store a client's engine config",
	Long: `Reads a JSON document from --file or stdin. Fields missing from the
document take their defaults. The whole config is rejected if any field is
invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if configFile != "" {
			f, err := os.Open(configFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		ec := domain.DefaultEngineConfigFor(args[0])
		if err := json.NewDecoder(in).Decode(&ec); err != nil {
			return fmt.Errorf("decoding config: %w", err)
		}

		svc, closeDB, err := configService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		saved, err := svc.Update(cmd.Context(), args[0], ec)
		if err != nil {
			return err
		}
		return printJSON(saved)
	},
}

func configService(cmd *cobra.Command) (*engineconfig.Service, func(), error) {
	db, err := openDB(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return engineconfig.NewService(postgres.NewEngineConfigRepo(db)), func() { db.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
