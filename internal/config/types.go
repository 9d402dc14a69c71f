package config

import (
	"github.com/jonesrussell/guildcrawl/internal/coordination"
	"github.com/jonesrussell/guildcrawl/internal/database"
	"github.com/jonesrussell/guildcrawl/internal/discovery"
	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/logger"
	"github.com/jonesrussell/guildcrawl/internal/proxy"
	"github.com/jonesrussell/guildcrawl/internal/redisclient"
	"github.com/jonesrussell/guildcrawl/internal/server"
	"github.com/jonesrussell/guildcrawl/internal/worker"
)

// Config is the full process configuration. It is built once at startup and
// passed by value afterwards.
type Config struct {
	Spider   SpiderConfig            `yaml:"spider"`
	Redis    redisclient.Config      `yaml:"redis"`
	Database database.Config         `yaml:"database"`
	Proxy    proxy.Config            `yaml:"proxy"`
	Fetcher  fetcher.Config          `yaml:"fetcher"`
	Worker   worker.Config           `yaml:"worker"`
	Lock     coordination.LockConfig `yaml:"lock"`
	Logger   logger.Config           `yaml:"logger"`
	Server   server.Config           `yaml:"server"`
	Schedule ScheduleConfig          `yaml:"schedule"`
}

// SpiderConfig controls what is crawled and how links are followed.
type SpiderConfig struct {
	// Name namespaces every Redis key, so differently configured crawls can
	// share one Redis.
	Name    string `env:"SPIDER_NAME" yaml:"name"`
	BaseURL string `env:"BASE_URL" yaml:"base_url"`

	UseWebCache      bool `env:"USE_WEB_CACHE" yaml:"use_web_cache"`
	FollowPagination bool `env:"FOLLOW_PAGINATION_LINKS" yaml:"follow_pagination_links"`
	FollowCategory   bool `env:"FOLLOW_CATEGORY_LINKS" yaml:"follow_category_links"`
	FollowTag        bool `env:"FOLLOW_TAG_LINKS" yaml:"follow_tag_links"`

	Language     string   `env:"LANGUAGE" yaml:"language"`
	URLPostfixes []string `env:"URL_POSTFIXES" yaml:"url_postfixes"`
	StartURLs    []string `env:"START_URL" yaml:"start_urls"`
	RestartJob   bool     `env:"RESTART_JOB" yaml:"restart_job"`
	SeedPriority int      `yaml:"seed_priority"`

	PaginationThreshold int      `yaml:"pagination_threshold"`
	TagThreshold        int      `yaml:"tag_threshold"`
	DenialSignatures    []string `yaml:"denial_signatures"`
}

// ScheduleConfig holds the periodic restart schedule.
type ScheduleConfig struct {
	// Cron is a standard five-field cron expression.
	Cron string `env:"RESTART_CRON" yaml:"cron"`
	// CrawlAfterRestart runs a crawl in-process between restarts.
	CrawlAfterRestart bool `yaml:"crawl_after_restart"`
}

// Default values not owned by a component package.
const (
	DefaultSpiderName   = "disboard"
	DefaultSeedPriority = 100
	DefaultRestartCron  = "0 3 * * 1"
)

// Default returns the configuration used when nothing else is set.
func Default() Config {
	dbCfg := database.Config{
		Driver:     database.DriverPostgres,
		SQLitePath: ":memory:",
		Table:      database.DefaultTable,
	}

	return Config{
		Spider: SpiderConfig{
			Name:                DefaultSpiderName,
			BaseURL:             discovery.DefaultBaseURL,
			FollowPagination:    true,
			FollowCategory:      true,
			FollowTag:           true,
			SeedPriority:        DefaultSeedPriority,
			PaginationThreshold: discovery.DefaultPaginationThreshold,
			TagThreshold:        discovery.DefaultTagThreshold,
		},
		Redis:    redisclient.Config{Address: "localhost:6379"},
		Database: dbCfg,
		Proxy:    proxy.DefaultConfig(),
		Fetcher:  fetcher.Config{DownloadDelay: fetcher.DefaultDownloadDelay}.WithDefaults(),
		Worker:   worker.DefaultConfig(),
		Lock:     coordination.DefaultLockConfig(),
		Logger:   logger.Config{Level: logger.DefaultLevel, Format: logger.DefaultFormat},
		Server: server.Config{
			Address:         server.DefaultAddress,
			ReadTimeout:     server.DefaultTimeout,
			WriteTimeout:    server.DefaultTimeout,
			ShutdownTimeout: server.DefaultShutdownTimeout,
		},
		Schedule: ScheduleConfig{Cron: DefaultRestartCron},
	}
}

// Discovery returns the link discovery settings derived from the spider section.
func (c Config) Discovery() discovery.Config {
	prefix := ""
	if c.Spider.UseWebCache {
		prefix = discovery.WebCachePrefix
	}
	return discovery.Config{
		BaseURL:             c.Spider.BaseURL,
		Prefix:              prefix,
		Postfixes:           discovery.Postfixes(c.Spider.Language, c.Spider.URLPostfixes),
		FollowPagination:    c.Spider.FollowPagination,
		FollowCategory:      c.Spider.FollowCategory,
		FollowTag:           c.Spider.FollowTag,
		PaginationThreshold: c.Spider.PaginationThreshold,
		TagThreshold:        c.Spider.TagThreshold,
	}
}
