package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/store"
)

// --- Fakes ---

// sliceCursor yields a fixed id list, then reports err. onNext runs before
// each id is produced.
type sliceCursor struct {
	ids    []string
	pos    int
	cur    string
	err    error
	onNext func(n int)
}

func (c *sliceCursor) Next(_ context.Context) bool {
	if c.pos >= len(c.ids) {
		return false
	}
	if c.onNext != nil {
		c.onNext(c.pos)
	}
	c.cur = c.ids[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) ID() string { return c.cur }
func (c *sliceCursor) Err() error { return c.err }

func fixedDiscoverer(c *sliceCursor) Discoverer {
	return DiscoverFunc(func(model.Query) Cursor { return c })
}

// fakeExtractor builds a posting per id; ids listed in bad fail extraction.
type fakeExtractor struct {
	mu        sync.Mutex
	bad       map[string]bool
	employer  string
	location  string
	body      string
	delay     time.Duration
	calls     int
	cancelled int
}

func (f *fakeExtractor) Extract(ctx context.Context, id string) (model.Posting, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if ctx.Err() != nil {
		f.cancelled++
	}
	if f.bad[id] {
		return model.Posting{}, &model.ExtractionFailure{ExternalID: id, Reason: "page structure unrecognized"}
	}
	loc := f.location
	return model.Posting{
		ExternalID:   id,
		Title:        "Data Scientist " + id,
		EmployerName: f.employer,
		EmployerKey:  model.NormalizeEmployerName(f.employer),
		Body:         f.body,
		Location:     &loc,
	}, nil
}

// countingResolver ensures the employer row exists and counts calls.
type countingResolver struct {
	mu    sync.Mutex
	store model.EmployerStore
	calls int
	err   error
}

func (r *countingResolver) Resolve(ctx context.Context, name, _ string) (model.Employer, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return model.Employer{}, r.err
	}
	return r.store.EnsureEmployer(ctx, model.NormalizeEmployerName(name), name)
}

// failingStore wraps a MemoryStore and fails every posting write.
type failingStore struct {
	*store.MemoryStore
}

func (s failingStore) UpsertPosting(context.Context, model.Posting) (model.UpsertResult, error) {
	return model.Unchanged, errors.New("disk I/O error")
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []model.Run
}

func (n *recordingNotifier) NotifyRun(run model.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%d", 1000+i)
	}
	return out
}

var testQuery = model.Query{Keywords: "data scientist", Location: "Austin", Window: model.WindowDay, Limit: 5}

// --- Tests ---

func TestRun_CountsAndClassifies(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &fakeExtractor{bad: map[string]bool{"1002": true}, employer: "Acme Corp", location: "Austin, TX", body: "Remote friendly with a hybrid schedule"}
	res := &countingResolver{store: st}
	n := &recordingNotifier{}
	p := New(fixedDiscoverer(&sliceCursor{ids: ids(4)}), ex, res, st, discardLogger(), WithWorkers(2), WithNotifier(n))

	run, err := p.Run(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.Discovered != 4 || run.PersistedNew != 3 || run.Failed != 1 || run.PersistedUpdated != 0 {
		t.Errorf("unexpected counts %+v", run)
	}
	if res.calls != 3 {
		t.Errorf("expected 3 resolves, got %d", res.calls)
	}

	for _, posting := range st.Postings() {
		if posting.WorkType != model.WorkTypeHybrid {
			t.Errorf("posting %s classified %s, want hybrid", posting.ExternalID, posting.WorkType)
		}
		if posting.Query != testQuery.Key() || posting.RunID != run.ID || posting.LocalKey == "" {
			t.Errorf("posting %s missing run bookkeeping: %+v", posting.ExternalID, posting)
		}
	}

	runs := st.Runs()
	if len(runs) != 1 || runs[0].Status != model.RunCompleted || runs[0].PersistedNew != 3 || runs[0].EndedAt == nil {
		t.Errorf("unexpected stored run %+v", runs)
	}
	if len(n.runs) != 1 || n.runs[0].ID != run.ID {
		t.Errorf("expected one notification for run %d, got %+v", run.ID, n.runs)
	}
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &fakeExtractor{employer: "Acme Corp", location: "Austin, TX"}
	res := &countingResolver{store: st}

	first, err := New(fixedDiscoverer(&sliceCursor{ids: ids(5)}), ex, res, st, discardLogger()).Run(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(fixedDiscoverer(&sliceCursor{ids: ids(5)}), ex, res, st, discardLogger()).Run(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}

	if first.PersistedNew != 5 {
		t.Errorf("expected 5 new on first run, got %d", first.PersistedNew)
	}
	if second.PersistedNew != 0 || second.PersistedUpdated != 0 || second.Unchanged != 5 {
		t.Errorf("expected an unchanged re-run, got %+v", second)
	}
	if len(st.Postings()) != 5 {
		t.Errorf("expected 5 stored postings, got %d", len(st.Postings()))
	}
}

func TestRun_NoEmployerSkipsEnrichment(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &fakeExtractor{location: "Remote"}
	res := &countingResolver{store: st}

	run, err := New(fixedDiscoverer(&sliceCursor{ids: ids(2)}), ex, res, st, discardLogger()).Run(context.Background(), testQuery)
	if err != nil {
		t.Fatal(err)
	}
	if run.PersistedNew != 2 || res.calls != 0 {
		t.Errorf("expected 2 stored without resolving, got %+v with %d resolves", run, res.calls)
	}
	for _, posting := range st.Postings() {
		if posting.WorkType != model.WorkTypeRemote {
			t.Errorf("expected remote, got %s", posting.WorkType)
		}
	}
}

func TestRun_ConcurrentRunFailsFast(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "jobscout.db.lock")
	held, err := store.AcquireRunLock(lockPath)
	if err != nil {
		t.Fatalf("acquiring lock: %v", err)
	}
	defer held.Release()

	st := store.NewMemoryStore()
	ex := &fakeExtractor{}
	p := New(fixedDiscoverer(&sliceCursor{ids: ids(3)}), ex, nil, st, discardLogger(), WithLockPath(lockPath))

	_, err = p.Run(context.Background(), testQuery)
	var conc *model.ConcurrentRunError
	if !errors.As(err, &conc) {
		t.Fatalf("expected ConcurrentRunError, got %v", err)
	}
	if !model.IsFatal(err) {
		t.Error("lock contention must be fatal")
	}
	if len(st.Runs()) != 0 || ex.calls != 0 {
		t.Errorf("nothing may happen under contention: %d runs, %d extractions", len(st.Runs()), ex.calls)
	}
}

func TestRun_LockReleasedAfterRun(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "jobscout.db.lock")
	st := store.NewMemoryStore()
	p := New(fixedDiscoverer(&sliceCursor{ids: ids(1)}), &fakeExtractor{}, nil, st, discardLogger(), WithLockPath(lockPath))
	if _, err := p.Run(context.Background(), testQuery); err != nil {
		t.Fatal(err)
	}

	lock, err := store.AcquireRunLock(lockPath)
	if err != nil {
		t.Fatalf("lock must be free after the run: %v", err)
	}
	lock.Release()
}

func TestRun_CancellationKeepsPartialCounts(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cursor := &sliceCursor{ids: ids(50), onNext: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	ex := &fakeExtractor{employer: "Acme Corp", delay: 10 * time.Millisecond}
	p := New(fixedDiscoverer(cursor), ex, &countingResolver{store: st}, st, discardLogger(), WithWorkers(2))

	run, err := p.Run(ctx, testQuery)
	if err != nil {
		t.Fatalf("cancellation is not a failure: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.Discovered == 0 || run.Discovered > 4 {
		t.Errorf("expected discovery to stop early, discovered %d", run.Discovered)
	}
	if run.PersistedNew+run.Failed != run.Discovered {
		t.Errorf("every handed-out item must finish: %+v", run)
	}
	if ex.cancelled != 0 {
		t.Errorf("in-flight extractions must not see cancellation, %d did", ex.cancelled)
	}
	stored := st.Runs()
	if len(stored) != 1 || stored[0].Status != model.RunCompleted || stored[0].ErrorSummary == nil {
		t.Errorf("unexpected stored run %+v", stored)
	}
}

func TestRun_StoreFailureFailsRun(t *testing.T) {
	mem := store.NewMemoryStore()
	st := failingStore{mem}
	n := &recordingNotifier{}
	p := New(fixedDiscoverer(&sliceCursor{ids: ids(3)}), &fakeExtractor{}, nil, st, discardLogger(), WithNotifier(n))

	run, err := p.Run(context.Background(), testQuery)
	if err == nil {
		t.Fatal("expected a pipeline-wide failure")
	}
	if run.Status != model.RunFailed || run.ErrorSummary == nil {
		t.Errorf("expected failed run with summary, got %+v", run)
	}
	stored := mem.Runs()
	if len(stored) != 1 || stored[0].Status != model.RunFailed {
		t.Errorf("run row must be finalized as failed, got %+v", stored)
	}
	if len(n.runs) != 1 || n.runs[0].Status != model.RunFailed {
		t.Errorf("failed run must be reported, got %+v", n.runs)
	}
}

func TestRun_ResolverStoreErrorFailsRun(t *testing.T) {
	st := store.NewMemoryStore()
	res := &countingResolver{store: st, err: errors.New("database is locked")}
	p := New(fixedDiscoverer(&sliceCursor{ids: ids(2)}), &fakeExtractor{employer: "Acme"}, res, st, discardLogger())

	run, err := p.Run(context.Background(), testQuery)
	if err == nil || run.Status != model.RunFailed {
		t.Fatalf("expected failed run, got %+v, %v", run, err)
	}
}

func TestRun_DiscoveryTruncationCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	truncated := &model.PermanentError{URL: "https://www.linkedin.com/jobs-guest/...", StatusCode: 403}
	cursor := &sliceCursor{ids: ids(2), err: truncated}
	p := New(fixedDiscoverer(cursor), &fakeExtractor{}, nil, st, discardLogger())

	run, err := p.Run(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("truncation must not fail the run: %v", err)
	}
	if run.Status != model.RunCompleted || run.PersistedNew != 2 {
		t.Errorf("unexpected run %+v", run)
	}
	if run.ErrorSummary == nil {
		t.Error("expected the truncation cause in the summary")
	}
}

func TestRun_ClosesDanglingRuns(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "jobscout.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	if _, err := st.CreateRun(ctx, testQuery, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	p := New(fixedDiscoverer(&sliceCursor{ids: ids(1)}), &fakeExtractor{}, nil, st, discardLogger())
	if _, err := p.Run(ctx, testQuery); err != nil {
		t.Fatal(err)
	}

	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Status != model.RunCompleted {
		t.Errorf("new run: expected completed, got %s", runs[0].Status)
	}
	if runs[1].Status != model.RunFailed || runs[1].ErrorSummary == nil {
		t.Errorf("dangling run: expected failed with reason, got %+v", runs[1])
	}
}

func TestMachine(t *testing.T) {
	m := newMachine(Idle)
	path := []State{Discovering, Extracting, Enriching, Classifying, Persisting, Completed}
	for _, s := range path {
		if err := m.advance(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	if err := m.advance(Failed); err == nil {
		t.Error("terminal state must not change")
	}

	if err := newMachine(Idle).advance(Failed); err == nil {
		t.Error("Idle must not fail directly")
	}
	if err := newMachine(Idle).advance(Extracting); err == nil {
		t.Error("Idle must go through Discovering")
	}
	for _, s := range []State{Discovering, Extracting, Enriching, Classifying, Persisting} {
		if err := newMachine(s).advance(Failed); err != nil {
			t.Errorf("%s -> failed must be allowed: %v", s, err)
		}
	}
	skip := newMachine(Extracting)
	if err := skip.advance(Classifying); err != nil {
		t.Errorf("enrichment is skippable: %v", err)
	}
}
