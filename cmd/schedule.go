package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/guildcrawl/internal/bootstrap"
)

func scheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Restart the crawl on a cron schedule",
		Long: `Restart the crawl on a cron schedule (RESTART_CRON, default "0 3 * * 1").

With --crawl the same process runs workers after each restart. Otherwise only
the restart happens and separately deployed crawl processes do the fetching.`,
		RunE: runSchedule,
	}

	cmd.Flags().String(flagCron, "", "cron expression or descriptor such as @daily")
	cmd.Flags().Bool(flagCrawlAfterRestart, false, "run workers after each restart")
	cmd.Flags().Int(flagWorkers, 0, "number of concurrent workers")
	cmd.Flags().Bool(flagServe, false, "serve /health, /metrics and /stats")
	cmd.Flags().String(flagServerAddress, "", "HTTP listen address")

	return cmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	return withApp(cmd, cfg, nil, func(app *bootstrap.App) error {
		return app.Schedule(cmd.Context())
	})
}
