package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/guildcrawl/internal/config"
)

// Flag names. They match the environment variable names in lower kebab case.
const (
	flagSpiderName        = "spider-name"
	flagUseWebCache       = "use-web-cache"
	flagFollowPagination  = "follow-pagination-links"
	flagFollowCategory    = "follow-category-links"
	flagFollowTag         = "follow-tag-links"
	flagLanguage          = "language"
	flagStartURL          = "start-url"
	flagConcurrentProxy   = "concurrent-proxy-requests"
	flagProxyURL          = "proxy-url"
	flagProxyPool         = "proxy-pool"
	flagProxyPoolFile     = "proxy-pool-file"
	flagRetryTimes        = "retry-times"
	flagRedisURL          = "redis-url"
	flagDBURL             = "db-url"
	flagDBDriver          = "db-driver"
	flagLogFile           = "log-file"
	flagRestartJob        = "restart-job"
	flagWorkers           = "workers"
	flagServe             = "serve"
	flagServerAddress     = "server-address"
	flagCron              = "cron"
	flagCrawlAfterRestart = "crawl"
	flagJSON              = "json"
)

// addSpiderFlags registers the flags shared by every command.
func addSpiderFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String(flagSpiderName, "", "spider name; namespaces every Redis key")
	f.Bool(flagUseWebCache, false, "fetch pages through the web cache mirror")
	f.Bool(flagFollowPagination, true, "follow pagination links")
	f.Bool(flagFollowCategory, true, "follow category links")
	f.Bool(flagFollowTag, true, "follow tag links")
	f.String(flagLanguage, "", "language filter appended to discovered links")
	f.StringSlice(flagStartURL, nil, "start URL(s) used by a restart")
	f.Bool(flagConcurrentProxy, false, "allow concurrent requests to each proxy")
	f.String(flagProxyURL, "", "FlareSolverr endpoint, e.g. http://localhost:8191/v1")
	f.StringSlice(flagProxyPool, nil, "additional proxy endpoints")
	f.String(flagProxyPoolFile, "", "file with one proxy endpoint per line")
	f.Int(flagRetryTimes, 0, "retries per request for retryable statuses")
	f.String(flagRedisURL, "", "Redis URL, e.g. redis://localhost:6379/0")
	f.String(flagDBURL, "", "PostgreSQL URL")
	f.String(flagDBDriver, "", "record store driver: postgres or sqlite")
	f.String(flagLogFile, "", "also write logs to this file")
}

// applyFlags copies flags the user set onto cfg. Unset flags never override
// the file or environment.
func applyFlags(v *viper.Viper, cfg *config.Config) {
	setString(v, flagSpiderName, &cfg.Spider.Name)
	setBool(v, flagUseWebCache, &cfg.Spider.UseWebCache)
	setBool(v, flagFollowPagination, &cfg.Spider.FollowPagination)
	setBool(v, flagFollowCategory, &cfg.Spider.FollowCategory)
	setBool(v, flagFollowTag, &cfg.Spider.FollowTag)
	setString(v, flagLanguage, &cfg.Spider.Language)
	setStrings(v, flagStartURL, &cfg.Spider.StartURLs)
	setBool(v, flagRestartJob, &cfg.Spider.RestartJob)

	setBool(v, flagConcurrentProxy, &cfg.Proxy.Concurrent)
	setString(v, flagProxyURL, &cfg.Proxy.URL)
	setStrings(v, flagProxyPool, &cfg.Proxy.Pool)
	setString(v, flagProxyPoolFile, &cfg.Proxy.PoolFile)
	setInt(v, flagRetryTimes, &cfg.Proxy.RetryTimes)

	setString(v, flagRedisURL, &cfg.Redis.URL)
	setString(v, flagDBURL, &cfg.Database.URL)
	setString(v, flagDBDriver, &cfg.Database.Driver)
	if v.IsSet(flagLogFile) {
		cfg.Logger.File = v.GetString(flagLogFile)
		cfg.Logger.SetDefaults()
	}

	setInt(v, flagWorkers, &cfg.Worker.Workers)
	setBool(v, flagServe, &cfg.Server.Enabled)
	setString(v, flagServerAddress, &cfg.Server.Address)
	setString(v, flagCron, &cfg.Schedule.Cron)
	setBool(v, flagCrawlAfterRestart, &cfg.Schedule.CrawlAfterRestart)
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setStrings(v *viper.Viper, key string, dst *[]string) {
	if v.IsSet(key) {
		*dst = v.GetStringSlice(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}
