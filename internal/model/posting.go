package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkType is the physical-presence classification of a posting.
type WorkType string

const (
	WorkTypeRemote  WorkType = "remote"
	WorkTypeHybrid  WorkType = "hybrid"
	WorkTypeOnSite  WorkType = "onsite"
	WorkTypeUnknown WorkType = "unknown"
)

// PageKind selects the delay range applied before a request.
type PageKind int

const (
	PageListing PageKind = iota
	PageDetail
	PageCompany
)

func (k PageKind) String() string {
	switch k {
	case PageListing:
		return "listing"
	case PageDetail:
		return "detail"
	case PageCompany:
		return "company"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// postingNamespace seeds the deterministic local keys of postings.
var postingNamespace = uuid.MustParse("8f2a7c1e-4b3d-4e6a-9c5f-2d1b0a9e8f7c")

// Posting is one job listing as extracted from a detail page.
type Posting struct {
	ExternalID     string // listing site's job id
	Query          string // Query.Key() of the search that discovered it
	LocalKey       string // UUIDv5 over Query + ExternalID
	Title          string
	EmployerName   string // as displayed on the page
	EmployerKey    string // canonical employer name, see NormalizeEmployerName
	Body           string
	Location       *string
	EmploymentType *string
	Seniority      *string
	JobFunction    *string
	Industries     *string
	SalaryText     *string
	PostedText     *string    // relative age, e.g. "3 days ago"
	PostedAt       *time.Time // resolved from PostedText or a datetime attribute
	ApplicantsText *string
	SourceURL      string  // detail page fetched
	ListingURL     *string // direct apply link
	CompanyURL     *string // employer profile link seen on the page
	WorkType       WorkType
	DiscoveredAt   time.Time
	RunID          int64
}

// PostingLocalKey returns the stable local key for a posting discovered by
// the given query.
func PostingLocalKey(queryKey, externalID string) string {
	return uuid.NewSHA1(postingNamespace, []byte(queryKey+"\x00"+externalID)).String()
}

// Employer is a company profile shared by many postings.
type Employer struct {
	Name           string // canonical key
	DisplayName    string
	SizeText       *string
	Followers      *int64
	Industry       *string
	ProfileURL     *string
	LastEnrichedAt *time.Time
	EnrichAttempts int
	CreatedAt      time.Time
}

// EmployerRef names an employer as postings reference it: the stored key and
// the name as displayed on the posting.
type EmployerRef struct {
	Key         string
	DisplayName string
}

// NeverEnriched reports whether no enrichment fetch has ever succeeded.
func (e Employer) NeverEnriched() bool {
	return e.LastEnrichedAt == nil
}

// Fresh reports whether the employer was enriched within window of now.
func (e Employer) Fresh(now time.Time, window time.Duration) bool {
	if e.LastEnrichedAt == nil {
		return false
	}
	return now.Sub(*e.LastEnrichedAt) < window
}

// NormalizeEmployerName trims, collapses inner whitespace and case-folds name.
func NormalizeEmployerName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// RunStatus is the lifecycle state of a Run row.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether s can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one execution of the pipeline.
type Run struct {
	ID               int64
	StartedAt        time.Time
	EndedAt          *time.Time
	Query            Query
	Discovered       int
	PersistedNew     int
	PersistedUpdated int
	Unchanged        int
	Failed           int
	Status           RunStatus
	ErrorSummary     *string
}

// UpsertResult tells whether a posting write inserted, changed or left a row as-is.
type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Inserted
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Fetcher issues one paced, retried request. It returns the body and status
// code of a successful (2xx) response.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind PageKind, headers map[string]string) ([]byte, int, error)
}

// EmployerStore is the persistence surface used by the enrichment cache.
type EmployerStore interface {
	GetEmployer(ctx context.Context, name string) (Employer, bool, error)
	EnsureEmployer(ctx context.Context, name, displayName string) (Employer, error)
	// SaveEmployer merges e into the stored row; it never clears a field.
	SaveEmployer(ctx context.Context, e Employer) error
	IncrementEnrichAttempts(ctx context.Context, name string) (Employer, error)
}

// PostingStore is the persistence surface used by the pipeline.
type PostingStore interface {
	EmployerStore
	UpsertPosting(ctx context.Context, p Posting) (UpsertResult, error)
	CreateRun(ctx context.Context, q Query, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, r Run) error
}

// Notifier reports a finished run.
type Notifier interface {
	NotifyRun(run Run) error
}

// EnrichmentStats summarizes the employers table.
type EnrichmentStats struct {
	Employers       int
	Enriched        int // last enrichment within the freshness window
	Stale           int // enriched before the freshness window
	NeverEnriched   int
	WithFailures    int // at least one failed enrichment attempt
	Postings        int
	MissingEmployer int // employer names referenced by postings but absent from employers
}
