package search

import (
	"context"
	"time"
)

// URLStore persists frontier URL records so crawling survives restarts.
type URLStore interface {
	Upsert(ctx context.Context, rec URLRecord) error
	Load(ctx context.Context) ([]URLRecord, error)
}

// DocumentStore is the external full-text engine contract: upsert by
// key, ranked fuzzy multi-field query with search-after pagination, and
// a connectivity probe. Its ranking function is a black box.
type DocumentStore interface {
	Upsert(ctx context.Context, doc PageDocument) error
	Get(ctx context.Context, url string) (PageDocument, bool, error)
	Search(ctx context.Context, q SearchQuery) (SearchPage, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Healthy(ctx context.Context) error
	Close() error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Parser extracts title, visible text, and outbound links from raw bytes.
type Parser interface {
	Parse(baseURL string, contentType string, body []byte) (ParsedPage, error)
}

// Indexer upserts parsed pages into the document store, idempotently
// keyed by normalized URL. The returned bool is true when the write was
// skipped because the content hash was unchanged.
type Indexer interface {
	Upsert(ctx context.Context, normalizedURL string, page ParsedPage) (bool, error)
}

// TrendRecorder accepts query events. Record must never block the caller.
type TrendRecorder interface {
	Record(term string)
}

// HostGate reports when a host may next be fetched. The frontier
// consults it so claimed URLs always belong to eligible hosts.
type HostGate interface {
	NextAllowed(host string) time.Time
}

// Clock returns the current time (swap for a fake in tests).
type Clock interface {
	Now() time.Time
}

// SystemClock is the real Clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
