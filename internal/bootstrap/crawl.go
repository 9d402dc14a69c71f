package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/logger"
	"github.com/jonesrussell/guildcrawl/internal/proxy"
	"github.com/jonesrussell/guildcrawl/internal/scheduler"
	"github.com/jonesrussell/guildcrawl/internal/server"
	"github.com/jonesrussell/guildcrawl/internal/worker"
)

// Seeds returns the start requests for a restart.
func (a *App) Seeds() []*domain.Request {
	return a.Discoverer.Seeds(a.Config.Spider.StartURLs, a.Config.Spider.SeedPriority)
}

// Restart wipes the spider's crawl state and seeds the start requests.
func (a *App) Restart(ctx context.Context) (int, error) {
	seeds := a.Seeds()
	if len(seeds) == 0 {
		return 0, errors.New("restart: no start URLs")
	}
	return a.Coordinator.Restart(ctx, seeds)
}

// Fetchers builds one proxy state machine per worker slot. Workers are spread
// round-robin across the configured proxy endpoints.
func (a *App) Fetchers(ctx context.Context) ([]worker.Fetcher, error) {
	doer, err := fetcher.NewCollyFetcher(ctx, a.Config.Fetcher, a.Logger)
	if err != nil {
		return nil, err
	}
	return a.fetchersFor(doer)
}

func (a *App) fetchersFor(doer fetcher.Doer) ([]worker.Fetcher, error) {
	workers := max(a.Config.Worker.Workers, 1)

	pool, err := proxy.NewPool(doer, a.Config.Proxy, workers, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("configure proxies: %w", err)
	}

	fetchers := make([]worker.Fetcher, workers)
	for i := range fetchers {
		fetchers[i] = pool.For(i)
	}
	return fetchers, nil
}

// WorkerPool builds the worker pool around fetchers.
func (a *App) WorkerPool(fetchers []worker.Fetcher) *worker.Pool {
	return worker.NewPool(
		a.Queue,
		a.Store,
		fetchers,
		a.Discoverer,
		a.Classifier,
		a.Metrics,
		a.Logger,
		a.Config.Worker,
	)
}

// Server builds the HTTP server with Redis and database health checks.
func (a *App) Server() *server.Server {
	checks := map[string]server.Check{
		"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	}
	if a.Repo != nil {
		checks["database"] = a.Repo.Ping
	}
	return server.New(a.Config.Server, checks, a.Stats, a.Registry, a.Logger)
}

// Crawl runs the worker pool until the frontier stays idle, optionally
// restarting the crawl first and serving HTTP alongside.
func (a *App) Crawl(ctx context.Context) error {
	if a.Config.Spider.RestartJob {
		n, err := a.Restart(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info("Crawl restarted", logger.Int("seeds", n))
	}

	fetchers, err := a.Fetchers(ctx)
	if err != nil {
		return err
	}
	return a.runWithServer(ctx, a.WorkerPool(fetchers).Run)
}

// Schedule restarts the crawl on the configured cron schedule. With
// CrawlAfterRestart the workers run after each restart in this process.
func (a *App) Schedule(ctx context.Context) error {
	sched := scheduler.New(a.Logger)

	job := func(jobCtx context.Context) error {
		n, err := a.Restart(jobCtx)
		if err != nil {
			return err
		}
		a.Logger.Info("Scheduled restart complete", logger.Int("seeds", n))
		if !a.Config.Schedule.CrawlAfterRestart {
			return nil
		}
		fetchers, err := a.Fetchers(jobCtx)
		if err != nil {
			return err
		}
		return a.WorkerPool(fetchers).Run(jobCtx)
	}

	if err := sched.Add("restart", a.Config.Schedule.Cron, job); err != nil {
		return err
	}
	return a.runWithServer(ctx, sched.Run)
}

// runWithServer runs fn and, when enabled, the HTTP server. The server stops
// when fn returns.
func (a *App) runWithServer(ctx context.Context, fn func(context.Context) error) error {
	if !a.Config.Server.Enabled {
		return fn(ctx)
	}

	srv := a.Server()
	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error { return srv.Run(srvCtx) })
	g.Go(func() error {
		defer stopServer()
		return fn(gctx)
	})
	return g.Wait()
}
