package model

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransientError is a retryable fetch condition: network failure, timeout,
// 5xx or 429.
type TransientError struct {
	URL        string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error fetching %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a non-retryable response (4xx other than 429).
type PermanentError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error fetching %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ExhaustedRetriesError means the retry ceiling was hit. Callers treat it as
// permanent for the item being fetched.
type ExhaustedRetriesError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// ExtractionFailure means a posting's mandatory fields could not be located.
type ExtractionFailure struct {
	ExternalID string
	Reason     string
	Err        error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extracting posting %s: %s: %v", e.ExternalID, e.Reason, e.Err)
	}
	return fmt.Sprintf("extracting posting %s: %s", e.ExternalID, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// ConcurrentRunError is returned when another run holds the store lock.
type ConcurrentRunError struct {
	LockPath string
}

func (e *ConcurrentRunError) Error() string {
	return fmt.Sprintf("another run is in progress (lock held on %s)", e.LockPath)
}

// MigrationError is a failed schema step. It is fatal at startup.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration to version %d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// IsPermanent reports whether err must not be retried for the current item.
func IsPermanent(err error) bool {
	var perm *PermanentError
	var exhausted *ExhaustedRetriesError
	return errors.As(err, &perm) || errors.As(err, &exhausted)
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var mig *MigrationError
	var conc *ConcurrentRunError
	return errors.As(err, &mig) || errors.As(err, &conc)
}
