package search

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable signals that the document store cannot be reached.
// Search requests fail fast with it instead of hanging.
var ErrStoreUnavailable = errors.New("document store unavailable")

// FetchError wraps a network, timeout, or HTTP-status failure.
// Fetch errors are retryable up to the frontier's attempt budget.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a content extraction failure. Parse errors are
// terminal for the URL; the same bytes would fail again.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// StoreWriteError wraps a document store write failure after the
// indexer's retry budget is exhausted.
type StoreWriteError struct {
	URL string
	Err error
}

func (e *StoreWriteError) Error() string { return fmt.Sprintf("store write %s: %v", e.URL, e.Err) }

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ValidationError rejects invalid client input immediately, with no
// retry and no store interaction.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether a crawl attempt failing with err should
// re-enter the frontier's retry path.
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return true
	}
	var writeErr *StoreWriteError
	return errors.As(err, &writeErr)
}
