package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/guildcrawl/internal/bootstrap"
	"github.com/jonesrussell/guildcrawl/internal/stats"
)

const flagRecords = "records"

func statsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show frontier and dedup counters for the spider",
		RunE:  runStats,
	}

	cmd.Flags().Bool(flagJSON, false, "print JSON instead of a table")
	cmd.Flags().Bool(flagRecords, false, "also count stored records (connects to the database)")

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Stats is read-only, so keep its output clean unless asked otherwise.
	if !debug {
		cfg.Logger.Level = "error"
	}

	withRecords, _ := cmd.Flags().GetBool(flagRecords)
	asJSON, _ := cmd.Flags().GetBool(flagJSON)

	var opts []bootstrap.Option
	if withRecords {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateWithoutDatabase()
		opts = append(opts, bootstrap.WithoutDatabase())
	}
	if err != nil {
		return err
	}

	return withApp(cmd, cfg, opts, func(app *bootstrap.App) error {
		snap, snapErr := app.Stats.Snapshot(cmd.Context())
		if snapErr != nil {
			return snapErr
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		stats.Render(cmd.OutOrStdout(), snap)
		return nil
	})
}
