package adapter

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

const (
	linkedInBaseURL = "https://www.linkedin.com"
	searchPath      = "/jobs-guest/jobs/api/seeMoreJobPostings/search"
	detailPath      = "/jobs-guest/jobs/api/jobPosting/"
	companyPath     = "/company/"

	// pageSize is the number of cards per search page.
	pageSize = 25
)

// LinkedIn reads the public guest job pages: search result pages, posting
// detail pages and company profiles. All requests go through the shared
// fetcher, which owns pacing and retries.
type LinkedIn struct {
	fetcher  model.Fetcher
	baseURL  string
	maxPages int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a LinkedIn adapter.
type Option func(*LinkedIn)

// WithBaseURL replaces the site root, e.g. to point at a mirror or test server.
func WithBaseURL(u string) Option {
	return func(l *LinkedIn) { l.baseURL = strings.TrimRight(u, "/") }
}

// NewLinkedIn returns the adapter. maxPages bounds pagination of a single
// discovery pass.
func NewLinkedIn(fetcher model.Fetcher, maxPages int, logger *slog.Logger, opts ...Option) *LinkedIn {
	if maxPages <= 0 {
		maxPages = 40
	}
	l := &LinkedIn{
		fetcher:  fetcher,
		baseURL:  linkedInBaseURL,
		maxPages: maxPages,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// searchURL builds the guest search URL for one result page.
func (l *LinkedIn) searchURL(q model.Query, page int) string {
	params := url.Values{}
	params.Set("keywords", q.Keywords)
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if code := q.Window.FilterCode(); code != "" {
		params.Set("f_TPR", code)
	}
	if q.Remote {
		params.Set("f_WT", "2")
	}
	if q.PartTime {
		params.Set("f_JT", "P")
	}
	params.Set("start", strconv.Itoa(page*pageSize))
	return l.baseURL + searchPath + "?" + params.Encode()
}

func (l *LinkedIn) detailURL(externalID string) string {
	return l.baseURL + detailPath + url.PathEscape(externalID)
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// companyURL guesses the profile URL of an employer from its name.
func (l *LinkedIn) companyURL(name string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	return l.baseURL + companyPath + slug
}

// absolute resolves href against the site root and drops query and fragment.
func (l *LinkedIn) absolute(href string) string {
	base, err := url.Parse(l.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

var pageHeaders = map[model.PageKind]map[string]string{
	model.PageListing: {"Referer": linkedInBaseURL + "/jobs/search"},
	model.PageDetail:  {"Referer": linkedInBaseURL + "/jobs/search"},
	model.PageCompany: {"Referer": linkedInBaseURL + "/jobs/"},
}
