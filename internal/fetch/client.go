package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/ratelimit"
	"github.com/amishk599/jobscout/internal/retry"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 8 << 20

// PageCache stores listing-page bodies between runs.
type PageCache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Set(ctx context.Context, url string, body []byte) error
}

// Ensure Client implements model.Fetcher.
var _ model.Fetcher = (*Client)(nil)

// Client fetches pages from the listing site. Every attempt is paced, carries
// rotated identifying headers and is classified as transient or permanent;
// transient failures are retried by the policy.
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	retry      *retry.Policy
	headers    *headerRotator
	cache      PageCache
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPageCache serves listing pages from cache when present.
func WithPageCache(c PageCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithUserAgents replaces the built-in User-Agent pool.
func WithUserAgents(uas []string) Option {
	return func(cl *Client) {
		if len(uas) > 0 {
			cl.headers = newHeaderRotator(uas)
		}
	}
}

// NewClient wires a fetch client. pacer and policy are shared by all workers.
func NewClient(httpClient *http.Client, pacer *ratelimit.Pacer, policy *retry.Policy, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		pacer:      pacer,
		retry:      policy,
		headers:    newHeaderRotator(nil),
		logger:     logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the body and status code of a successful response.
// Failures are *model.PermanentError, *model.ExhaustedRetriesError or a
// context error.
func (c *Client) Fetch(ctx context.Context, url string, kind model.PageKind, headers map[string]string) ([]byte, int, error) {
	if kind == model.PageListing && c.cache != nil {
		if body, ok := c.cache.Get(ctx, url); ok {
			c.logger.Debug("listing page served from cache", "url", url)
			return body, http.StatusOK, nil
		}
	}

	var (
		body   []byte
		status int
	)
	err := c.retry.Do(ctx, url, func(ctx context.Context) error {
		var err error
		body, status, err = c.once(ctx, url, kind, headers)
		return err
	})
	if err != nil {
		return nil, status, err
	}

	if kind == model.PageListing && c.cache != nil {
		if err := c.cache.Set(ctx, url, body); err != nil {
			c.logger.Warn("caching listing page failed", "url", url, "error", err)
		}
	}
	return body, status, nil
}

// once performs a single paced attempt.
func (c *Client) once(ctx context.Context, url string, kind model.PageKind, headers map[string]string) ([]byte, int, error) {
	release, err := c.pacer.Acquire(ctx, kind)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &model.PermanentError{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	c.headers.apply(req, headers)

	c.logger.Debug("fetching", "kind", kind, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &model.TransientError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, resp.StatusCode, ctx.Err()
		}
		return nil, resp.StatusCode, &model.TransientError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	return body, resp.StatusCode, classify(url, resp)
}

// classify maps a response status to nil, a transient or a permanent error.
func classify(url string, resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &model.TransientError{
			URL:        url,
			RetryAfter: ra,
			Err:        &model.HTTPError{StatusCode: code, RetryAfter: ra, Err: errors.New("rate limited")},
		}
	case code >= 500:
		return &model.TransientError{URL: url, Err: &model.HTTPError{StatusCode: code}}
	default:
		return &model.PermanentError{URL: url, StatusCode: code, Err: &model.HTTPError{StatusCode: code}}
	}
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds ("120") and HTTP-date forms. Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
