package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// Ensure MemoryStore implements model.PostingStore.
var _ model.PostingStore = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. It is used by dry runs,
// where nothing may reach the database file, and by tests.
type MemoryStore struct {
	mu        sync.Mutex
	postings  map[[2]string]storedPosting
	employers map[string]model.Employer
	runs      []model.Run
	now       func() time.Time
}

type storedPosting struct {
	posting model.Posting
	hash    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		postings:  make(map[[2]string]storedPosting),
		employers: make(map[string]model.Employer),
		now:       time.Now,
	}
}

func (s *MemoryStore) UpsertPosting(_ context.Context, p model.Posting) (model.UpsertResult, error) {
	if p.ExternalID == "" || p.Query == "" {
		return model.Unchanged, fmt.Errorf("upserting posting: external id and query key are required")
	}
	if p.LocalKey == "" {
		p.LocalKey = model.PostingLocalKey(p.Query, p.ExternalID)
	}
	if p.WorkType == "" {
		p.WorkType = model.WorkTypeUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.EmployerKey != "" {
		if _, ok := s.employers[p.EmployerKey]; !ok {
			s.employers[p.EmployerKey] = model.Employer{Name: p.EmployerKey, DisplayName: p.EmployerName, CreatedAt: s.now()}
		}
	}

	key := [2]string{p.ExternalID, p.Query}
	hash := contentHash(p)
	old, ok := s.postings[key]
	switch {
	case !ok:
		s.postings[key] = storedPosting{posting: p, hash: hash}
		return model.Inserted, nil
	case old.hash == hash:
		return model.Unchanged, nil
	default:
		p.DiscoveredAt = old.posting.DiscoveredAt
		s.postings[key] = storedPosting{posting: p, hash: hash}
		return model.Updated, nil
	}
}

// Postings returns a copy of all stored postings in no particular order.
func (s *MemoryStore) Postings() []model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Posting, 0, len(s.postings))
	for _, sp := range s.postings {
		out = append(out, sp.posting)
	}
	return out
}

func (s *MemoryStore) GetEmployer(_ context.Context, name string) (model.Employer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employers[name]
	return e, ok, nil
}

func (s *MemoryStore) EnsureEmployer(_ context.Context, name, displayName string) (model.Employer, error) {
	if displayName == "" {
		displayName = name
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employers[name]
	if !ok {
		e = model.Employer{Name: name, DisplayName: displayName, CreatedAt: s.now()}
	} else if e.DisplayName == "" {
		e.DisplayName = displayName
	}
	s.employers[name] = e
	return e, nil
}

func (s *MemoryStore) SaveEmployer(_ context.Context, e model.Employer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.employers[e.Name]
	if !ok {
		return fmt.Errorf("saving employer %q: no such employer", e.Name)
	}
	if cur.DisplayName == "" {
		cur.DisplayName = e.DisplayName
	}
	cur.SizeText = keepNonEmpty(cur.SizeText, e.SizeText)
	cur.Industry = keepNonEmpty(cur.Industry, e.Industry)
	cur.ProfileURL = keepNonEmpty(cur.ProfileURL, e.ProfileURL)
	if e.Followers != nil {
		cur.Followers = e.Followers
	}
	if e.LastEnrichedAt != nil && (cur.LastEnrichedAt == nil || e.LastEnrichedAt.After(*cur.LastEnrichedAt)) {
		cur.LastEnrichedAt = e.LastEnrichedAt
	}
	cur.EnrichAttempts = max(cur.EnrichAttempts, e.EnrichAttempts)
	s.employers[e.Name] = cur
	return nil
}

func keepNonEmpty(stored, incoming *string) *string {
	if incoming == nil || *incoming == "" {
		return stored
	}
	return incoming
}

func (s *MemoryStore) IncrementEnrichAttempts(_ context.Context, name string) (model.Employer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employers[name]
	if !ok {
		return model.Employer{}, fmt.Errorf("recording enrichment attempt for %q: no such employer", name)
	}
	e.EnrichAttempts++
	s.employers[name] = e
	return e, nil
}

func (s *MemoryStore) StaleEmployers(_ context.Context, cutoff time.Time, limit int) ([]model.Employer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Employer
	for _, e := range s.employers {
		if e.LastEnrichedAt == nil || e.LastEnrichedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrichAttempts != out[j].EnrichAttempts {
			return out[i].EnrichAttempts < out[j].EnrichAttempts
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MissingEmployers(_ context.Context) ([]model.EmployerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]string)
	for _, sp := range s.postings {
		k := sp.posting.EmployerKey
		if k == "" {
			continue
		}
		if _, ok := s.employers[k]; !ok {
			seen[k] = sp.posting.EmployerName
		}
	}
	refs := make([]model.EmployerRef, 0, len(seen))
	for k, display := range seen {
		if display == "" {
			display = k
		}
		refs = append(refs, model.EmployerRef{Key: k, DisplayName: display})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

func (s *MemoryStore) EnrichmentStats(_ context.Context, cutoff time.Time) (model.EnrichmentStats, error) {
	s.mu.Lock()
	st := model.EnrichmentStats{Employers: len(s.employers), Postings: len(s.postings)}
	for _, e := range s.employers {
		switch {
		case e.LastEnrichedAt == nil:
			st.NeverEnriched++
		case e.LastEnrichedAt.Before(cutoff):
			st.Stale++
		default:
			st.Enriched++
		}
		if e.EnrichAttempts > 0 {
			st.WithFailures++
		}
	}
	s.mu.Unlock()

	missing, _ := s.MissingEmployers(context.Background())
	st.MissingEmployer = len(missing)
	return st, nil
}

// DeleteEmployer removes an employer row, as an external maintenance job would.
func (s *MemoryStore) DeleteEmployer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.employers, name)
}

func (s *MemoryStore) CreateRun(_ context.Context, q model.Query, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.runs) + 1)
	s.runs = append(s.runs, model.Run{ID: id, StartedAt: startedAt, Query: q, Status: model.RunRunning})
	return id, nil
}

func (s *MemoryStore) FinishRun(_ context.Context, r model.Run) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("finishing run %d: status %q is not terminal", r.ID, r.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID < 1 || int(r.ID) > len(s.runs) {
		return fmt.Errorf("finishing run %d: no such run", r.ID)
	}
	cur := &s.runs[r.ID-1]
	if cur.Status != model.RunRunning {
		return fmt.Errorf("finishing run %d: run is not in the running state", r.ID)
	}
	if r.EndedAt == nil {
		now := s.now()
		r.EndedAt = &now
	}
	r.StartedAt = cur.StartedAt
	r.Query = cur.Query
	*cur = r
	return nil
}

// Runs returns a copy of the run history, oldest first.
func (s *MemoryStore) Runs() []model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Run(nil), s.runs...)
}
