// Package search defines core types shared across the crawl-index-query pipeline.
package search

import (
	"time"
)

// URLState represents the lifecycle state of a discovered URL.
type URLState string

// URL states persisted in the frontier store.
const (
	StatePending  URLState = "pending"
	StateInFlight URLState = "in_flight"
	StateDone     URLState = "done"
	StateFailed   URLState = "failed"
)

// Outcome records how a crawl attempt for a URL concluded.
type Outcome string

// Crawl outcome values.
const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// URLRecord is the durable frontier entry for one normalized URL.
// Records are never deleted; a re-crawl updates LastCrawledAt in place.
type URLRecord struct {
	NormalizedURL string    `json:"normalized_url"`
	Host          string    `json:"host"`
	Depth         int       `json:"depth"`
	State         URLState  `json:"state"`
	Outcome       Outcome   `json:"outcome,omitempty"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastCrawledAt time.Time `json:"last_crawled_at,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
}

// PageDocument is the indexed representation of one fetched page,
// keyed by normalized URL. Re-crawls overwrite in place.
type PageDocument struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ContentHash   string    `json:"content_hash"`
	CrawledAt     time.Time `json:"crawled_at"`
	OutboundLinks []string  `json:"outbound_links,omitempty"`
	Safe          bool      `json:"safe"`
}

// FetchResponse is the result returned by a Fetcher implementation.
// Truncated marks a body that exceeded the fetcher's size cap; such
// pages are incomplete and must not be indexed.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Truncated   bool
	Duration    time.Duration
}

// ParsedPage holds the deterministic extraction of a fetched page.
type ParsedPage struct {
	Title         string
	Content       string
	ContentHash   string
	OutboundLinks []string
	Safe          bool
}

// Hit is a single ranked match returned by the document store.
// SortKey is the store's opaque sort position for this hit; handing the
// last hit's SortKey back via SearchQuery.After resumes after it.
type Hit struct {
	Document PageDocument
	Score    float64
	SortKey  []string
}

// SearchQuery describes one ranked fuzzy query against the document store.
type SearchQuery struct {
	Term     string
	Size     int
	After    []string
	SafeOnly bool
}

// SearchPage is one page of store hits.
type SearchPage struct {
	Hits  []Hit
	Total uint64
}

// Result is a single client-facing search result.
type Result struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	DisplayURL string    `json:"display_url"`
	Snippet    string    `json:"snippet"`
	Score      float64   `json:"score"`
	CrawledAt  time.Time `json:"crawled_at"`
	Safe       bool      `json:"safe"`
}

// InstantAnswer is an optional computed answer shown above results.
type InstantAnswer struct {
	Type   string `json:"type"`
	Answer string `json:"answer"`
	Label  string `json:"label"`
}

// ResultPage is one cursor-paginated page of search results.
type ResultPage struct {
	Query         string         `json:"query"`
	Results       []Result       `json:"results"`
	Total         uint64         `json:"total"`
	NextCursor    string         `json:"next_cursor,omitempty"`
	InstantAnswer *InstantAnswer `json:"instant_answer,omitempty"`
}

// CrawlCounts summarizes frontier state for the status endpoint.
type CrawlCounts struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
}
