package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/adapter"
	"github.com/amishk599/jobscout/internal/enrich"
	"github.com/amishk599/jobscout/internal/fetch"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/ratelimit"
	"github.com/amishk599/jobscout/internal/retry"
	"github.com/amishk599/jobscout/internal/store"
)

// listingSite serves one search result page with seven cards (one repeated,
// one whose detail page is an auth wall), their detail pages and the
// employer's company page.
type listingSite struct {
	mu       sync.Mutex
	requests map[string]int
}

var scenarioCards = []string{"3801", "3802", "3803", "3802", "3804", "3805", "3806"}

const malformedID = "3806"

func (s *listingSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	switch {
	case strings.Contains(r.URL.Path, "/seeMoreJobPostings/"):
		s.requests["listing"]++
	case strings.Contains(r.URL.Path, "/jobPosting/"):
		s.requests["detail"]++
	case strings.HasPrefix(r.URL.Path, "/company/"):
		s.requests["company"]++
	}
	s.mu.Unlock()

	switch {
	case strings.Contains(r.URL.Path, "/seeMoreJobPostings/"):
		if r.URL.Query().Get("start") != "0" {
			return
		}
		for _, id := range scenarioCards {
			fmt.Fprintf(w, `<li><div class="base-card" data-entity-urn="urn:li:jobPosting:%s"><h3>Job</h3></div></li>`, id)
		}
	case strings.Contains(r.URL.Path, "/jobPosting/"):
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if id == malformedID {
			fmt.Fprint(w, `<html><body><div class="authwall">Sign in</div></body></html>`)
			return
		}
		fmt.Fprintf(w, `<section class="top-card-layout"><div class="top-card-layout__card">
<h2 class="top-card-layout__title">Data Scientist %s</h2>
<a class="topcard__org-name-link" href="/company/acme-corp?trk=x">Acme Corp</a>
<span class="topcard__flavor--bullet">Austin, TX</span>
<span class="posted-time-ago__text">2 days ago</span></div></section>
<div class="description__text--rich"><p>Build models. Hybrid schedule, remote two days a week.</p></div>`, id)
	case r.URL.Path == "/company/acme-corp":
		fmt.Fprint(w, `<html><body><h1>Acme Corp</h1>
<h3 class="top-card-layout__first-subline">Software Development Austin, Texas 10,274,592 followers</h3>
<dd>1,001-5,000 employees</dd></body></html>`)
	default:
		http.NotFound(w, r)
	}
}

func (s *listingSite) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[kind]
}

type scenario struct {
	site  *listingSite
	store *store.SQLiteStore
	cache *enrich.Cache
	pipe  *Pipeline
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	site := &listingSite{requests: make(map[string]int)}
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "jobscout.db")
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pacer := ratelimit.NewPacer(nil, 0, 1, 2)
	policy := retry.NewPolicy(1, time.Millisecond, 5*time.Millisecond, discardLogger())
	client := fetch.NewClient(srv.Client(), pacer, policy, discardLogger())
	li := adapter.NewLinkedIn(client, 40, discardLogger(), adapter.WithBaseURL(srv.URL))
	cache := enrich.NewCache(st, li, 30*24*time.Hour, discardLogger())

	discover := DiscoverFunc(func(q model.Query) Cursor { return li.Discover(q) })
	p := New(discover, li, cache, st, discardLogger(), WithWorkers(3), WithLockPath(dbPath+".lock"))
	return &scenario{site: site, store: st, cache: cache, pipe: p}
}

func TestScenario_DataScientistAustin(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	q := model.Query{Keywords: "data scientist", Location: "Austin", Window: model.WindowDay, Limit: 5}

	run, err := sc.pipe.Run(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Discovered != 6 || run.PersistedNew != 5 || run.Failed != 1 {
		t.Errorf("expected discovered=6 new=5 failed=1, got %+v", run)
	}
	if run.Status != model.RunCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if sc.site.count("company") != 1 {
		t.Errorf("five postings of one employer must cost one company fetch, got %d", sc.site.count("company"))
	}

	acme, found, err := sc.store.GetEmployer(ctx, "acme corp")
	if err != nil || !found {
		t.Fatalf("employer not stored: %v", err)
	}
	if acme.Followers == nil || *acme.Followers != 10274592 || acme.LastEnrichedAt == nil {
		t.Errorf("unexpected employer %+v", acme)
	}

	table, err := sc.store.ExportTable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 5 {
		t.Fatalf("expected 5 exported rows, got %d", len(table.Rows))
	}
	col := table.Column("work_type")
	for _, row := range table.Rows {
		if row[col] != string(model.WorkTypeHybrid) {
			t.Errorf("expected hybrid, got %q", row[col])
		}
	}

	runs, err := sc.store.ListRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("listing runs: %v", err)
	}
	if runs[0].Discovered != 6 || runs[0].PersistedNew != 5 || runs[0].Failed != 1 || runs[0].Status != model.RunCompleted {
		t.Errorf("unexpected stored run %+v", runs[0])
	}
}

func TestScenario_IdenticalRerun(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	q := model.Query{Keywords: "data scientist", Location: "Austin", Window: model.WindowDay, Limit: 5}

	if _, err := sc.pipe.Run(ctx, q); err != nil {
		t.Fatal(err)
	}
	fetchesBefore := sc.cache.Stats().Fetches

	run, err := sc.pipe.Run(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if run.PersistedNew != 0 || run.PersistedUpdated != 0 {
		t.Errorf("expected new=0 updated=0, got %+v", run)
	}
	if run.Unchanged != 5 || run.Failed != 1 {
		t.Errorf("unexpected counts %+v", run)
	}
	if got := sc.cache.Stats().Fetches; got != fetchesBefore {
		t.Errorf("fresh employer refetched: %d -> %d", fetchesBefore, got)
	}
	if n, _ := sc.store.CountPostings(ctx); n != 5 {
		t.Errorf("expected 5 postings, got %d", n)
	}
}
