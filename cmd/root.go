// Package cmd implements the guildcrawl command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/guildcrawl/internal/config"
	"github.com/jonesrussell/guildcrawl/internal/logger"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "guildcrawl",
		Short: "Distributed crawler for Discord server listings",
		Long: `guildcrawl crawls disboard.org server listings with any number of
cooperating workers that share a Redis frontier, and upserts every listed
server into PostgreSQL or SQLite.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	// Load .env before flag parsing so CONFIG_PATH and ENV_FILE from it apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	addSpiderFlags(rootCmd)

	rootCmd.AddCommand(crawlCommand())
	rootCmd.AddCommand(restartCommand())
	rootCmd.AddCommand(scheduleCommand())
	rootCmd.AddCommand(statsCommand())
	rootCmd.AddCommand(versionCommand())
}

// loadConfig builds the configuration for cmd: file and environment first,
// then every flag the user actually set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}

	v := viper.New()
	if bindErr := v.BindPFlags(cmd.Flags()); bindErr != nil {
		return config.Config{}, fmt.Errorf("bind flags: %w", bindErr)
	}
	applyFlags(v, &cfg)

	if debug {
		cfg.Logger.Level = "debug"
		cfg.Logger.Development = true
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}
