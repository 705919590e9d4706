package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobscout/internal/model"
)

// Cursor walks the search result pages of one query. It is lazy and finite:
// a page is only fetched when the ids of the previous one are used up, and
// once Next returns false it keeps returning false.
type Cursor struct {
	source *LinkedIn
	query  model.Query
	logger *slog.Logger

	seen    map[string]struct{}
	pending []string
	current string

	page       int
	collected  int
	duplicates int
	done       bool
	err        error
}

// Discover returns a cursor over the external ids matching q.
func (l *LinkedIn) Discover(q model.Query) *Cursor {
	return &Cursor{
		source: l,
		query:  q,
		logger: l.logger.With("query", q.String()),
		seen:   make(map[string]struct{}),
	}
}

// Next advances to the next unique id, fetching the next page when needed.
func (c *Cursor) Next(ctx context.Context) bool {
	for len(c.pending) == 0 {
		if c.done {
			c.current = ""
			return false
		}
		c.fetchPage(ctx)
	}
	c.current = c.pending[0]
	c.pending = c.pending[1:]
	return true
}

// ID returns the id produced by the last successful Next.
func (c *Cursor) ID() string { return c.current }

// Err reports why discovery stopped early, or nil when the result set ran out
// on its own.
func (c *Cursor) Err() error { return c.err }

// Pages returns the number of result pages fetched so far.
func (c *Cursor) Pages() int { return c.page }

// Duplicates returns how many ids were dropped because an earlier page had
// already produced them.
func (c *Cursor) Duplicates() int { return c.duplicates }

func (c *Cursor) fetchPage(ctx context.Context) {
	if c.query.Limit > 0 && c.collected >= c.query.Limit {
		c.done = true
		return
	}
	if c.page >= c.source.maxPages {
		c.logger.Info("page limit reached", "pages", c.page)
		c.done = true
		return
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		c.done = true
		return
	}

	url := c.source.searchURL(c.query, c.page)
	body, _, err := c.source.fetcher.Fetch(ctx, url, model.PageListing, pageHeaders[model.PageListing])
	c.page++
	if err != nil {
		c.err = fmt.Errorf("discovery stopped at page %d: %w", c.page, err)
		c.done = true
		c.logger.Warn("listing page failed, truncating discovery", "page", c.page, "error", err)
		return
	}

	ids, err := parseListingIDs(body)
	if err != nil {
		c.err = fmt.Errorf("parsing listing page %d: %w", c.page, err)
		c.done = true
		return
	}
	if len(ids) == 0 {
		c.logger.Debug("empty listing page", "page", c.page)
		c.done = true
		return
	}

	fresh := 0
	for _, id := range ids {
		if _, dup := c.seen[id]; dup {
			c.duplicates++
			continue
		}
		c.seen[id] = struct{}{}
		c.pending = append(c.pending, id)
		fresh++
	}
	c.collected += fresh
	c.logger.Debug("listing page parsed", "page", c.page, "cards", len(ids), "new", fresh)
	if fresh == 0 {
		c.done = true
	}
}

var jobViewIDRegex = regexp.MustCompile(`/jobs/view/(?:[^/?#]*-)?(\d+)`)

// parseListingIDs returns the job ids of the cards on a search result page in
// page order. Cards without a recognizable id are skipped.
func parseListingIDs(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	cards := doc.Find("li").FilterFunction(func(_ int, li *goquery.Selection) bool {
		return li.ParentsFiltered("li").Length() == 0
	})
	if cards.Length() == 0 {
		cards = doc.Find("div.base-card, div.job-search-card")
	}
	var ids []string
	cards.Each(func(_ int, card *goquery.Selection) {
		if id := cardID(card); id != "" {
			ids = append(ids, id)
		}
	})
	return ids, nil
}

func cardID(card *goquery.Selection) string {
	if urn := attrSelfOrChild(card, "data-entity-urn"); urn != "" {
		if i := strings.LastIndex(urn, ":"); i >= 0 && i < len(urn)-1 {
			return urn[i+1:]
		}
	}
	if id := attrSelfOrChild(card, "data-job-id"); id != "" {
		return id
	}
	if href := firstAttr(card, "href", "a[href*='/jobs/view/']"); href != "" {
		if m := jobViewIDRegex.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

func attrSelfOrChild(s *goquery.Selection, attr string) string {
	if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return firstAttr(s, attr, "["+attr+"]")
}
