package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/robfig/cron/v3"
)

// Runner executes one pipeline run for a query.
type Runner interface {
	Run(ctx context.Context, q model.Query) (model.Run, error)
}

// Scheduler owns the main loop: on every cron tick it runs each configured
// query sequentially.
type Scheduler struct {
	runner  Runner
	queries []model.Query
	spec    string
	logger  *slog.Logger
}

// NewScheduler creates a scheduler firing on the given cron spec, e.g.
// "@every 24h" or "0 7 * * *".
func NewScheduler(runner Runner, queries []model.Query, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{
		runner:  runner,
		queries: queries,
		spec:    spec,
		logger:  logger,
	}, nil
}

// Run runs one immediate cycle, then one cycle per tick. A tick that fires
// while the previous cycle is still going is skipped. It returns nil when ctx
// is cancelled, after the cycle in progress has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.spec, func() { s.runAll(ctx) }); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}

	s.logger.Info("starting scheduler", "schedule", s.spec, "queries", len(s.queries))
	c.Start()

	// The immediate cycle runs outside the cron chain, so an early tick may
	// overlap it; the run lock turns that tick into a logged skip.
	s.runAll(ctx)

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

// runAll runs every query in order. Failures are logged and do not stop the
// remaining queries.
func (s *Scheduler) runAll(ctx context.Context) {
	for _, q := range s.queries {
		if ctx.Err() != nil {
			return
		}

		run, err := s.runner.Run(ctx, q)
		var busy *model.ConcurrentRunError
		switch {
		case errors.As(err, &busy):
			s.logger.Warn("another run holds the lock, skipping", "query", q.String(), "lock", busy.LockPath)
		case err != nil:
			s.logger.Error("run failed", "query", q.String(), "run_id", run.ID, "error", err)
		default:
			s.logger.Info("scheduled run finished", "query", q.String(), "run_id", run.ID, "new", run.PersistedNew)
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
