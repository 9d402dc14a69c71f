package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/guildcrawl/internal/bootstrap"
	"github.com/jonesrussell/guildcrawl/internal/config"
)

func crawlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run crawl workers against the shared frontier",
		Long: `Run crawl workers until the shared frontier stays empty.

Any number of crawl processes may run against the same Redis; they share the
frontier and the dupe filter. Use --restart-job (or RESTART_JOB=true) in
exactly one of them to clear the crawl state and seed the start URLs first.`,
		RunE: runCrawl,
	}

	cmd.Flags().Bool(flagRestartJob, false, "clear crawl state and seed start URLs before crawling")
	cmd.Flags().Int(flagWorkers, 0, "number of concurrent workers")
	cmd.Flags().Bool(flagServe, false, "serve /health, /metrics and /stats while crawling")
	cmd.Flags().String(flagServerAddress, "", "HTTP listen address")

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	return withApp(cmd, cfg, nil, func(app *bootstrap.App) error {
		return app.Crawl(cmd.Context())
	})
}

// withApp builds the logger and App for cfg, runs fn and tears both down.
func withApp(cmd *cobra.Command, cfg config.Config, opts []bootstrap.Option, fn func(*bootstrap.App) error) (err error) {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := bootstrap.New(cmd.Context(), cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return fn(app)
}
