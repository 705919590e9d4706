package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/classify"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/store"
	"golang.org/x/sync/errgroup"
)

// Cursor yields discovered external ids in order.
type Cursor interface {
	Next(ctx context.Context) bool
	ID() string
	Err() error
}

// Discoverer starts a discovery pass for a query.
type Discoverer interface {
	Discover(q model.Query) Cursor
}

// DiscoverFunc adapts a function to the Discoverer interface.
type DiscoverFunc func(q model.Query) Cursor

func (f DiscoverFunc) Discover(q model.Query) Cursor { return f(q) }

// Extractor turns an external id into a posting.
type Extractor interface {
	Extract(ctx context.Context, externalID string) (model.Posting, error)
}

// EmployerResolver returns the stored, possibly freshly enriched, employer.
type EmployerResolver interface {
	Resolve(ctx context.Context, name, profileURL string) (model.Employer, error)
}

// danglingRunFailer is implemented by stores that can close runs left in the
// running state by a crashed process.
type danglingRunFailer interface {
	FailDanglingRuns(ctx context.Context, reason string) (int64, error)
}

// Pipeline runs discovery, extraction, enrichment, classification and
// persistence for one query at a time.
type Pipeline struct {
	discoverer Discoverer
	extractor  Extractor
	resolver   EmployerResolver
	store      model.PostingStore
	notifier   model.Notifier
	classify   func(location, body string) model.WorkType
	workers    int
	lockPath   string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many postings are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLockPath makes every run hold the advisory file lock at path.
func WithLockPath(path string) Option {
	return func(p *Pipeline) { p.lockPath = path }
}

// WithNotifier reports each finished run to n.
func WithNotifier(n model.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New wires a pipeline. resolver may be nil, in which case employers are
// stored as seen on the posting without enrichment.
func New(
	discoverer Discoverer,
	extractor Extractor,
	resolver EmployerResolver,
	st model.PostingStore,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		discoverer: discoverer,
		extractor:  extractor,
		resolver:   resolver,
		store:      st,
		classify:   classify.Classify,
		workers:    4,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// tally accumulates per-item outcomes across workers.
type tally struct {
	mu                                             sync.Mutex
	discovered, inserted, updated, unchanged, fail int
}

func (t *tally) add(f func(t *tally)) {
	t.mu.Lock()
	f(t)
	t.mu.Unlock()
}

// Run executes one pass for q and returns the finalized run record. The
// returned run always carries the counts reached so far. An error is only
// returned for pipeline-wide faults; per-item failures are counted instead.
//
// Cancelling ctx stops discovery between items. Items already handed to a
// worker finish, and the run is recorded as completed with partial counts.
func (p *Pipeline) Run(ctx context.Context, q model.Query) (model.Run, error) {
	started := p.now().UTC()
	run := model.Run{StartedAt: started, Query: q, Status: model.RunFailed}
	state := newMachine(Idle)

	if p.lockPath != "" {
		lock, err := store.AcquireRunLock(p.lockPath)
		if err != nil {
			return run, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				p.logger.Warn("releasing run lock failed", "path", p.lockPath, "error", err)
			}
		}()
	}

	if f, ok := p.store.(danglingRunFailer); ok {
		n, err := f.FailDanglingRuns(ctx, "interrupted: process exited before the run finished")
		if err != nil {
			return run, fmt.Errorf("closing dangling runs: %w", err)
		}
		if n > 0 {
			p.logger.Warn("closed runs left running by an earlier process", "count", n)
		}
	}

	id, err := p.store.CreateRun(ctx, q, started)
	if err != nil {
		return run, fmt.Errorf("creating run record: %w", err)
	}
	run.ID = id
	run.Status = model.RunRunning
	logger := p.logger.With("run_id", id, "query", q.String())

	if err := state.advance(Discovering); err != nil {
		return p.fail(ctx, run, err)
	}
	logger.Info("run started", "workers", p.workers)

	// Items in flight never see cancellation; discovery checks ctx between ids.
	itemCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	ids := make(chan string)
	var counts tally

	cursor := p.discoverer.Discover(q)
	g.Go(func() error {
		defer close(ids)
		for gctx.Err() == nil && cursor.Next(itemCtx) {
			select {
			case ids <- cursor.ID():
				counts.add(func(t *tally) { t.discovered++ })
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for externalID := range ids {
				if err := p.process(itemCtx, logger, run.ID, q, externalID, &counts); err != nil {
					return err
				}
			}
			return nil
		})
	}

	werr := g.Wait()

	run.Discovered = counts.discovered
	run.PersistedNew = counts.inserted
	run.PersistedUpdated = counts.updated
	run.Unchanged = counts.unchanged
	run.Failed = counts.fail

	if werr != nil {
		if err := state.advance(Failed); err != nil {
			logger.Error("state machine rejected failure", "error", err)
		}
		return p.fail(ctx, run, werr)
	}

	if err := cursor.Err(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("discovery truncated", "error", err)
		summary := fmt.Sprintf("discovery truncated: %v", err)
		run.ErrorSummary = &summary
	}
	if ctx.Err() != nil {
		logger.Info("run cancelled, keeping partial results")
		summary := "cancelled before discovery finished"
		run.ErrorSummary = &summary
	}

	if err := state.advance(Completed); err != nil {
		return p.fail(ctx, run, err)
	}
	ended := p.now().UTC()
	run.EndedAt = &ended
	run.Status = model.RunCompleted
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return p.fail(ctx, run, fmt.Errorf("finalizing run: %w", err))
	}

	logger.Info("run completed",
		"discovered", run.Discovered,
		"new", run.PersistedNew,
		"updated", run.PersistedUpdated,
		"unchanged", run.Unchanged,
		"failed", run.Failed,
		"duration", ended.Sub(started).Round(time.Millisecond),
	)
	p.notify(run)
	return run, nil
}

// fail finalizes run as failed, best effort, and returns cause.
func (p *Pipeline) fail(ctx context.Context, run model.Run, cause error) (model.Run, error) {
	ended := p.now().UTC()
	summary := cause.Error()
	run.EndedAt = &ended
	run.Status = model.RunFailed
	run.ErrorSummary = &summary
	if run.ID != 0 {
		if err := p.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			p.logger.Error("recording failed run", "run_id", run.ID, "error", err)
		}
	}
	p.logger.Error("run failed", "run_id", run.ID, "error", cause)
	p.notify(run)
	return run, cause
}

func (p *Pipeline) notify(run model.Run) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyRun(run); err != nil {
		p.logger.Warn("run notification failed", "run_id", run.ID, "error", err)
	}
}

// process takes one external id through every item stage. Extraction
// failures are counted and swallowed; store failures are returned and end
// the run.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, runID int64, q model.Query, externalID string, counts *tally) error {
	item := newMachine(Discovering)
	logger = logger.With("external_id", externalID)

	if err := item.advance(Extracting); err != nil {
		return err
	}
	posting, err := p.extractor.Extract(ctx, externalID)
	if err != nil {
		logger.Warn("skipping posting", "state", item.current(), "error", err)
		counts.add(func(t *tally) { t.fail++ })
		return nil
	}
	posting.ExternalID = externalID
	posting.Query = q.Key()
	posting.LocalKey = model.PostingLocalKey(posting.Query, externalID)
	posting.RunID = runID
	posting.DiscoveredAt = p.now().UTC()

	if posting.EmployerKey != "" && p.resolver != nil {
		if err := item.advance(Enriching); err != nil {
			return err
		}
		hint := ""
		if posting.CompanyURL != nil {
			hint = *posting.CompanyURL
		}
		employer, err := p.resolver.Resolve(ctx, posting.EmployerName, hint)
		if err != nil {
			return fmt.Errorf("resolving employer of %s: %w", externalID, err)
		}
		posting.EmployerKey = employer.Name
	}

	if err := item.advance(Classifying); err != nil {
		return err
	}
	location := ""
	if posting.Location != nil {
		location = *posting.Location
	}
	posting.WorkType = p.classify(location, posting.Body)

	if err := item.advance(Persisting); err != nil {
		return err
	}
	res, err := p.store.UpsertPosting(ctx, posting)
	if err != nil {
		return fmt.Errorf("persisting posting %s: %w", externalID, err)
	}
	counts.add(func(t *tally) {
		switch res {
		case model.Inserted:
			t.inserted++
		case model.Updated:
			t.updated++
		default:
			t.unchanged++
		}
	})
	if err := item.advance(Completed); err != nil {
		return err
	}
	logger.Debug("posting stored", "result", res, "work_type", posting.WorkType)
	return nil
}
