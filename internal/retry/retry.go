package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// Policy retries transient failures with capped exponential backoff and jitter.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// NewPolicy returns a retry policy.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent
// retry and never more than maxDelay.
func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Policy {
	return &Policy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

// Do calls op until it succeeds, fails permanently, or the retry ceiling is
// hit. Exhaustion is reported as *model.ExhaustedRetriesError wrapping the
// last failure. target only labels errors and log lines.
func (p *Policy) Do(ctx context.Context, target string, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if !isRetryable(err) {
		return err
	}

	lastErr := err
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		p.logger.Warn("retrying after transient error",
			"target", target,
			"attempt", attempt,
			"max_retries", p.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return &model.ExhaustedRetriesError{URL: target, Attempts: p.maxRetries + 1, Last: lastErr}
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After hint takes precedence. The result never exceeds maxDelay.
func (p *Policy) backoffDelay(attempt int, err error) time.Duration {
	if ra := retryAfter(err); ra > 0 {
		return min(ra, p.maxDelay)
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := p.baseDelay
	for i := 1; i < attempt && delay < p.maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, p.maxDelay)

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return min(delay, p.maxDelay)
}

func retryAfter(err error) time.Duration {
	var transient *model.TransientError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return transient.RetryAfter
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return 0
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perm *model.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var transient *model.TransientError
	if errors.As(err, &transient) {
		return true
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Non-HTTP errors such as network or DNS failures are retryable.
	return true
}
