// Package scheduler runs periodic crawl maintenance, such as frontier
// restarts, on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/guildcrawl/internal/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler using the standard five-field cron syntax plus
// descriptors such as "@hourly" and "@every 6h".
func New(log logger.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser: parser,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name on spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, name, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.log.Info("Scheduled job started", logger.String("job", name))

		if err := job(s.ctx); err != nil {
			s.log.Error("Scheduled job failed",
				logger.String("job", name),
				logger.Duration("duration", time.Since(start)),
				logger.Error(err),
			)
			return
		}
		s.log.Info("Scheduled job finished",
			logger.String("job", name),
			logger.Duration("duration", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.log.Info("Job scheduled", logger.String("job", name), logger.String("schedule", spec))
	return nil
}

// Next returns the earliest upcoming run, or the zero time when nothing is
// scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// Run starts the scheduler and blocks until ctx is cancelled. Running jobs
// are cancelled and waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("Scheduler started",
		logger.Int("jobs", len(s.cron.Entries())),
		logger.String("next_run", s.Next().Format(time.RFC3339)),
	)

	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
