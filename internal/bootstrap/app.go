// Package bootstrap wires the crawler components from a Config.
//
// Setup runs in phases:
//   - Phase 1: Redis - shared frontier, dupe filter and seen-guild set
//   - Phase 2: Database - record repository (skipped by WithoutDatabase)
//   - Phase 3: Crawl state - queue, restart coordinator, item store, discovery
//   - Phase 4: Observability - metrics registry and stats collector
//
// Fetchers and the worker pool are built on demand by Crawl, since only the
// crawl command needs them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/guildcrawl/internal/config"
	"github.com/jonesrussell/guildcrawl/internal/database"
	"github.com/jonesrussell/guildcrawl/internal/discovery"
	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
	"github.com/jonesrussell/guildcrawl/internal/frontier"
	"github.com/jonesrussell/guildcrawl/internal/items"
	"github.com/jonesrussell/guildcrawl/internal/logger"
	"github.com/jonesrussell/guildcrawl/internal/metrics"
	"github.com/jonesrussell/guildcrawl/internal/redisclient"
	"github.com/jonesrussell/guildcrawl/internal/stats"
)

// App holds the wired components for one spider.
type App struct {
	Config config.Config
	Logger logger.Logger

	Redis *redis.Client
	DB    *sqlx.DB

	Keys        frontier.Keys
	Filter      *frontier.DupeFilter
	Queue       *frontier.Queue
	Coordinator *frontier.Coordinator
	Repo        *database.RecordRepository
	Store       *items.Store
	Discoverer  *discovery.Discoverer
	Classifier  *extract.Classifier

	Registry *prometheus.Registry
	Metrics  *metrics.Crawl
	Stats    *stats.Collector
}

type options struct {
	withDatabase bool
	redisClient  *redis.Client
	db           *sqlx.DB
}

// Option customises New.
type Option func(*options)

// WithoutDatabase skips the relational store. Record upserts fail, so this is
// only for commands that never write records.
func WithoutDatabase() Option {
	return func(o *options) { o.withDatabase = false }
}

// WithRedis uses an existing client instead of dialing cfg.Redis.
func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithDB uses an existing connection instead of opening cfg.Database.
func WithDB(db *sqlx.DB) Option {
	return func(o *options) { o.db = db }
}

var errNoDatabase = errors.New("database not configured for this command")

// New connects to the stores and builds the crawl components. Close releases them.
func New(ctx context.Context, cfg config.Config, log logger.Logger, opts ...Option) (*App, error) {
	o := options{withDatabase: true}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg, Logger: log}

	// Phase 1: Redis
	app.Redis = o.redisClient
	if app.Redis == nil {
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.Redis = client
	}

	// Phase 2: Database
	if o.withDatabase {
		if err := app.setupDatabase(ctx, o.db); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	// Phase 3: Crawl state
	if err := app.setupCrawlState(); err != nil {
		_ = app.Close()
		return nil, err
	}

	// Phase 4: Observability
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.Registry)

	var records stats.RecordCounter
	if app.Repo != nil {
		records = app.Repo
	}
	app.Stats = stats.NewCollector(cfg.Spider.Name, app.Queue, app.Filter, app.Store, records)

	log.Info("Crawler components ready",
		logger.String("spider", cfg.Spider.Name),
		logger.Bool("database", app.Repo != nil),
	)
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		opened, err := database.Open(ctx, a.Config.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		db = opened
	}
	a.DB = db

	repo, err := database.NewRecordRepository(db, a.Config.Database.TableName())
	if err != nil {
		return err
	}
	if a.Config.Database.Driver == database.DriverSQLite {
		if schemaErr := repo.EnsureSchema(ctx); schemaErr != nil {
			return schemaErr
		}
	}
	a.Repo = repo
	return nil
}

func (a *App) setupCrawlState() error {
	cfg := a.Config

	a.Keys = frontier.KeysFor(cfg.Spider.Name)
	a.Filter = frontier.NewDupeFilter(a.Redis, a.Keys.DupeFilter)
	a.Queue = frontier.NewQueue(a.Redis, a.Keys, a.Filter)
	a.Coordinator = frontier.NewCoordinator(a.Redis, a.Keys, cfg.Lock, a.Logger)

	var repo items.Repository = unavailableRepo{}
	if a.Repo != nil {
		repo = a.Repo
	}
	a.Store = items.NewStore(a.Redis, a.Keys.GuildIDs, repo)

	d, err := discovery.New(cfg.Discovery())
	if err != nil {
		return fmt.Errorf("configure discovery: %w", err)
	}
	a.Discoverer = d
	a.Classifier = extract.NewClassifier(cfg.Spider.DenialSignatures)
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}

// unavailableRepo stands in for the repository when the database is skipped.
type unavailableRepo struct{}

func (unavailableRepo) Upsert(context.Context, domain.ServerRecord) error {
	return errNoDatabase
}
