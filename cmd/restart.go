package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/guildcrawl/internal/bootstrap"
)

func restartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Clear crawl state and seed the start URLs",
		Long: `Clear the frontier, the dupe filter and the seen-guild set of the spider,
then push the seed requests. Running workers pick the seeds up on their next pop.`,
		RunE: runRestart,
	}
}

func runRestart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err = cfg.ValidateWithoutDatabase(); err != nil {
		return err
	}

	opts := []bootstrap.Option{bootstrap.WithoutDatabase()}
	return withApp(cmd, cfg, opts, func(app *bootstrap.App) error {
		n, restartErr := app.Restart(cmd.Context())
		if restartErr != nil {
			return restartErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d requests for spider %q\n", n, cfg.Spider.Name)
		return nil
	})
}
