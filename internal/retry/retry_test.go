package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockOp calls a function on each invocation, tracking call count.
type mockOp struct {
	calls int
	fn    func(attempt int) error
}

func (m *mockOp) do(_ context.Context) error {
	m.calls++
	return m.fn(m.calls)
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockOp{fn: func(_ int) error { return nil }}

	p := NewPolicy(2, 10*time.Millisecond, time.Second, discardLogger())
	if err := p.Do(context.Background(), "u", mock.do); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesTransient_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockOp{fn: func(attempt int) error {
		if attempt == 1 {
			return &model.TransientError{URL: "u", Err: errors.New("HTTP 503")}
		}
		return nil
	}}

	p := NewPolicy(2, 10*time.Millisecond, time.Second, discardLogger())
	if err := p.Do(context.Background(), "u", mock.do); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xxHTTPError(t *testing.T) {
	mock := &mockOp{fn: func(attempt int) error {
		if attempt < 3 {
			return &model.HTTPError{StatusCode: 502}
		}
		return nil
	}}

	p := NewPolicy(3, 5*time.Millisecond, time.Second, discardLogger())
	if err := p.Do(context.Background(), "u", mock.do); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryPermanent(t *testing.T) {
	mock := &mockOp{fn: func(_ int) error {
		return &model.PermanentError{URL: "u", StatusCode: 404}
	}}

	p := NewPolicy(2, 10*time.Millisecond, time.Second, discardLogger())
	err := p.Do(context.Background(), "u", mock.do)
	var perm *model.PermanentError
	if !errors.As(err, &perm) || perm.StatusCode != 404 {
		t.Fatalf("expected PermanentError with status 404, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xxHTTPError(t *testing.T) {
	mock := &mockOp{fn: func(_ int) error {
		return &model.HTTPError{StatusCode: 403, Err: errors.New("forbidden")}
	}}

	p := NewPolicy(2, 10*time.Millisecond, time.Second, discardLogger())
	if err := p.Do(context.Background(), "u", mock.do); err == nil {
		t.Fatal("expected error, got nil")
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_ExhaustedAfterMaxRetries(t *testing.T) {
	last := &model.TransientError{URL: "u", Err: errors.New("HTTP 500")}
	mock := &mockOp{fn: func(_ int) error { return last }}

	p := NewPolicy(2, 10*time.Millisecond, time.Second, discardLogger())
	err := p.Do(context.Background(), "https://example.com/jobs", mock.do)

	var exhausted *model.ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedRetriesError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, last) {
		t.Error("exhausted error should wrap the last failure")
	}
	if !model.IsPermanent(err) {
		t.Error("exhausted error should be treated as permanent for the item")
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_ZeroRetriesStillReportsExhaustion(t *testing.T) {
	mock := &mockOp{fn: func(_ int) error {
		return &model.TransientError{URL: "u", Err: errors.New("timeout")}
	}}

	p := NewPolicy(0, time.Millisecond, time.Second, discardLogger())
	err := p.Do(context.Background(), "u", mock.do)
	var exhausted *model.ExhaustedRetriesError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 1 {
		t.Fatalf("expected ExhaustedRetriesError after 1 attempt, got %v", err)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockOp{fn: func(_ int) error {
		return &model.TransientError{URL: "u", Err: errors.New("HTTP 500")}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so the backoff sleep is interrupted.
	cancel()

	p := NewPolicy(2, time.Second, time.Minute, discardLogger())
	err := p.Do(ctx, "u", mock.do)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestBackoffDelay_CappedAndJittered(t *testing.T) {
	p := NewPolicy(10, time.Second, 8*time.Second, discardLogger())
	plain := errors.New("net")

	for attempt := 1; attempt <= 10; attempt++ {
		d := p.backoffDelay(attempt, plain)
		if d > 8*time.Second {
			t.Fatalf("attempt %d: delay %v exceeds cap", attempt, d)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
	}

	// attempt 2 is 2s ±30%
	d := p.backoffDelay(2, plain)
	if d < 1400*time.Millisecond || d > 2600*time.Millisecond {
		t.Errorf("attempt 2 delay %v outside 2s ±30%%", d)
	}
}

func TestBackoffDelay_RetryAfterTakesPrecedence(t *testing.T) {
	p := NewPolicy(3, time.Second, 30*time.Second, discardLogger())

	err := &model.TransientError{URL: "u", RetryAfter: 7 * time.Second}
	if d := p.backoffDelay(1, err); d != 7*time.Second {
		t.Errorf("delay = %v, want Retry-After 7s", d)
	}

	long := &model.TransientError{URL: "u", RetryAfter: 5 * time.Minute}
	if d := p.backoffDelay(1, long); d != 30*time.Second {
		t.Errorf("delay = %v, want capped 30s", d)
	}
}
