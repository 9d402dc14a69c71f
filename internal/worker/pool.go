// Package worker runs the crawl loop: pop, fetch, classify, record, discover, push.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
	"github.com/jonesrussell/guildcrawl/internal/frontier"
	"github.com/jonesrussell/guildcrawl/internal/logger"
	"github.com/jonesrussell/guildcrawl/internal/metrics"
	"github.com/jonesrussell/guildcrawl/internal/proxy"
)

// Default pool settings.
const (
	DefaultWorkers        = 4
	DefaultPopTimeout     = 5 * time.Second
	DefaultIdleTimeout    = 120 * time.Second
	DefaultReportInterval = 15 * time.Second
)

// Config configures the worker pool.
type Config struct {
	Workers          int           `env:"WORKERS" yaml:"workers"`
	PopTimeout       time.Duration `yaml:"pop_timeout"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" yaml:"idle_timeout"`
	MaxDenialRetries int           `yaml:"max_denial_retries"`
	ReportInterval   time.Duration `yaml:"report_interval"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          DefaultWorkers,
		PopTimeout:       DefaultPopTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		MaxDenialRetries: DefaultMaxDenialRetries,
		ReportInterval:   DefaultReportInterval,
	}
}

// Pool runs Workers independent crawl loops against the shared stores.
type Pool struct {
	frontier   Frontier
	store      ItemStore
	fetchers   []Fetcher
	discoverer Discoverer
	classifier *extract.Classifier
	denial     *DenialStage
	metrics    *metrics.Crawl
	log        logger.Logger
	cfg        Config
	runID      string
}

// NewPool creates a worker pool. Worker i uses fetchers[i % len(fetchers)].
func NewPool(
	f Frontier,
	store ItemStore,
	fetchers []Fetcher,
	discoverer Discoverer,
	classifier *extract.Classifier,
	m *metrics.Crawl,
	log logger.Logger,
	cfg Config,
) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = def.PopTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = def.ReportInterval
	}

	return &Pool{
		frontier:   f,
		store:      store,
		fetchers:   fetchers,
		discoverer: discoverer,
		classifier: classifier,
		denial:     NewDenialStage(classifier, cfg.MaxDenialRetries),
		metrics:    m,
		log:        log,
		cfg:        cfg,
		runID:      uuid.NewString(),
	}
}

// Run starts the workers and blocks until all of them have gone idle, the
// context is cancelled, or one hits a coordination-store error. A store error
// stops every worker and is returned.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.fetchers) == 0 {
		return errors.New("worker pool: no fetchers configured")
	}

	log := p.log.With(logger.String("run_id", p.runID))
	log.Info("Starting worker pool",
		logger.Int("workers", p.cfg.Workers),
		logger.Duration("idle_timeout", p.cfg.IdleTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := range p.cfg.Workers {
		wg.Add(1)
		w := &worker{
			id:      i,
			pool:    p,
			fetcher: p.fetchers[i%len(p.fetchers)],
			log:     log.With(logger.Int("worker_id", i)),
		}
		g.Go(func() error {
			defer wg.Done()
			return w.run(gctx)
		})
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	g.Go(func() error {
		p.reportFrontier(gctx, done)
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Worker pool stopped", logger.Error(err))
		return err
	}

	log.Info("Worker pool finished")
	return err
}

func (p *Pool) reportFrontier(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if n, err := p.frontier.Len(ctx); err == nil {
				p.metrics.SetFrontierSize(n)
			}
		}
	}
}

// worker holds the per-goroutine state of one crawl loop.
type worker struct {
	id      int
	pool    *Pool
	fetcher Fetcher
	log     logger.Logger
}

func (w *worker) run(ctx context.Context) error {
	w.pool.metrics.WorkerStarted()
	defer w.pool.metrics.WorkerStopped()

	w.log.Info("Worker started")
	lastWork := time.Now()

	for {
		req, err := w.pool.frontier.Pop(ctx, w.pool.cfg.PopTimeout)
		switch {
		case errors.Is(err, frontier.ErrEmpty):
			if idle := time.Since(lastWork); idle >= w.pool.cfg.IdleTimeout {
				w.log.Info("Frontier idle, worker exiting", logger.Duration("idle", idle))
				return nil
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d: %w", w.id, err)
		}

		if processErr := w.process(ctx, req); processErr != nil {
			return fmt.Errorf("worker %d: %w", w.id, processErr)
		}
		lastWork = time.Now()
	}
}

// process handles one request end to end. Only coordination-store failures
// and cancellation are returned; everything else is isolated to the request.
func (w *worker) process(ctx context.Context, req *domain.Request) error {
	log := w.log.With(
		logger.URL(req.URL),
		logger.Int("priority", req.Priority),
		logger.Int("retry_count", req.RetryCount),
	)

	started := time.Now()
	out, err := w.fetcher.Fetch(ctx, req)
	if err != nil && !proxy.IsFatal(err) {
		return err
	}
	w.pool.metrics.RecordFetch(string(out.State), out.Proxied, time.Since(started).Seconds())

	if err != nil {
		w.pool.metrics.RecordFatal()
		log.Error("Request abandoned", logger.Error(err))
		return nil
	}

	if out.State == proxy.StateRetryable {
		return w.push(ctx, out.Retry)
	}

	resp := out.Response
	page, err := extract.Parse(resp.Body, resp.URL, extract.ScrapeTime(resp.Headers, resp.FetchedAt))
	if err != nil {
		w.pool.metrics.RecordPage(string(domain.PageUnexpected))
		log.Warn("Failed to parse page", logger.Error(err))
		return nil
	}

	if verdict := w.pool.denial.Check(req, page); verdict.Denied {
		w.pool.metrics.RecordPage(string(domain.PageDenial))
		w.pool.metrics.RecordDenial()
		if verdict.Exhausted {
			log.Error("Denial retries exhausted", logger.Int("denial_count", req.DenialCount))
			return nil
		}
		log.Warn("Blocked by anti-bot page, re-fetching",
			logger.String("title", page.Title),
			logger.Int("denial_count", verdict.Refetch.DenialCount),
		)
		return w.push(ctx, verdict.Refetch)
	}

	kind := w.pool.classifier.Classify(page)
	w.pool.metrics.RecordPage(string(kind))

	if kind == domain.PageUnexpected {
		log.Warn("Response is not a server listing", logger.String("title", page.Title))
		return nil
	}

	for _, rec := range page.Records {
		class, recErr := w.pool.store.Record(ctx, rec)
		if recErr != nil {
			return recErr
		}
		w.pool.metrics.RecordItem(string(class))
	}

	follow := w.pool.discoverer.Discover(page)
	for _, next := range follow {
		if pushErr := w.push(ctx, next); pushErr != nil {
			return pushErr
		}
	}

	log.Debug("Page processed",
		logger.String("kind", string(kind)),
		logger.Int("records", len(page.Records)),
		logger.Int("discovered", len(follow)),
	)
	return nil
}

func (w *worker) push(ctx context.Context, req *domain.Request) error {
	accepted, err := w.pool.frontier.Push(ctx, req)
	if err != nil {
		return err
	}
	w.pool.metrics.RecordPush(req.Source(), accepted)
	return nil
}
