// Package frontier implements the durable, host-fair URL work queue.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
	"github.com/intellsearch/intell/internal/search/urlutil"
)

// ErrNotKnown is returned when an operation references a URL the
// frontier has never seen.
var ErrNotKnown = errors.New("url not known to frontier")

// Config controls frontier limits and retry behavior.
type Config struct {
	MaxDepth    int
	MaxAttempts int
	MinRevisit  time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MinRevisit <= 0 {
		c.MinRevisit = 24 * time.Hour
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// Frontier holds per-host sub-queues under a single dedup index keyed
// by normalized URL. Claiming rotates fairly across hosts with eligible
// work so one large host cannot starve the others.
type Frontier struct {
	mu      sync.Mutex
	index   map[string]*search.URLRecord
	queues  map[string][]string
	ring    []string
	ringPos int
	wake    chan struct{}

	store  search.URLStore
	gate   search.HostGate
	clock  search.Clock
	logger *zap.Logger
	cfg    Config
}

// New constructs a Frontier. gate may be nil when no politeness
// schedule applies (tests, offline replay).
func New(store search.URLStore, gate search.HostGate, clock search.Clock, logger *zap.Logger, cfg Config) *Frontier {
	if clock == nil {
		clock = search.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		index:  make(map[string]*search.URLRecord),
		queues: make(map[string][]string),
		wake:   make(chan struct{}, 1),
		store:  store,
		gate:   gate,
		clock:  clock,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Restore loads persisted records so crawling resumes after a restart.
// Records left InFlight by a crash go back to Pending.
func (f *Frontier) Restore(ctx context.Context) error {
	records, err := f.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load frontier: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		rec := rec
		if rec.State == search.StateInFlight {
			rec.State = search.StatePending
		}
		f.index[rec.NormalizedURL] = &rec
		if rec.State == search.StatePending {
			f.pushLocked(rec.Host, rec.NormalizedURL)
		}
	}
	f.logger.Info("frontier restored",
		zap.Int("records", len(records)),
		zap.Int("hosts", len(f.queues)),
	)
	f.signal()
	return nil
}

// Enqueue adds a URL if it is not already known by normalized form and
// its depth is within the configured limit; otherwise it is a no-op.
// Re-discovery of a Done URL schedules a re-crawl only after the
// minimum revisit interval.
func (f *Frontier) Enqueue(ctx context.Context, rawURL string, depth int) error {
	if depth > f.cfg.MaxDepth {
		return nil
	}
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	host, err := urlutil.Host(normalized)
	if err != nil {
		return fmt.Errorf("host of %q: %w", normalized, err)
	}

	f.mu.Lock()
	now := f.clock.Now()
	rec, known := f.index[normalized]
	switch {
	case !known:
		rec = &search.URLRecord{
			NormalizedURL: normalized,
			Host:          host,
			Depth:         depth,
			State:         search.StatePending,
			DiscoveredAt:  now,
		}
		f.index[normalized] = rec
		f.pushLocked(host, normalized)
	case rec.State == search.StateDone && now.Sub(rec.LastCrawledAt) >= f.cfg.MinRevisit:
		rec.State = search.StatePending
		rec.Attempts = 0
		rec.NextAttemptAt = time.Time{}
		f.pushLocked(host, normalized)
	default:
		f.mu.Unlock()
		return nil
	}
	snapshot := *rec
	f.mu.Unlock()

	if err := f.store.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("persist %q: %w", normalized, err)
	}
	f.signal()
	return nil
}

// ClaimNext returns the next eligible URL, blocking until one becomes
// available or ctx ends. A URL is eligible when its host's gate allows
// fetching now and any retry backoff has elapsed. The claimed record
// transitions to InFlight.
func (f *Frontier) ClaimNext(ctx context.Context) (search.URLRecord, error) {
	for {
		rec, wait, ok := f.tryClaim()
		if ok {
			if err := f.store.Upsert(ctx, rec); err != nil {
				f.release(rec.NormalizedURL)
				return search.URLRecord{}, fmt.Errorf("persist claim %q: %w", rec.NormalizedURL, err)
			}
			return rec, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return search.URLRecord{}, ctx.Err()
		case <-f.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tryClaim scans hosts round-robin for one with eligible work. When
// nothing is eligible it returns how long to wait before rechecking.
func (f *Frontier) tryClaim() (search.URLRecord, time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	wait := time.Second

	for offset := 0; offset < len(f.ring); offset++ {
		host := f.ring[(f.ringPos+offset)%len(f.ring)]
		queue := f.queues[host]
		if len(queue) == 0 {
			continue
		}
		if f.gate != nil {
			if next := f.gate.NextAllowed(host); next.After(now) {
				if d := next.Sub(now); d < wait {
					wait = d
				}
				continue
			}
		}
		rec := f.index[queue[0]]
		if rec.NextAttemptAt.After(now) {
			if d := rec.NextAttemptAt.Sub(now); d < wait {
				wait = d
			}
			continue
		}

		f.queues[host] = queue[1:]
		f.ringPos = (f.ringPos + offset + 1) % len(f.ring)
		rec.State = search.StateInFlight
		return *rec, 0, true
	}
	return search.URLRecord{}, wait, false
}

// release puts a claimed URL back at the head of its host queue after a
// failed claim persist.
func (f *Frontier) release(normalized string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.index[normalized]
	if !ok {
		return
	}
	rec.State = search.StatePending
	f.queues[rec.Host] = append([]string{normalized}, f.queues[rec.Host]...)
}

// MarkDone transitions a claimed URL out of InFlight. On a successful
// outcome the extracted outbound links are enqueued at depth+1. A
// failed outcome re-enters the retry path with exponential backoff
// until the attempt budget is exhausted, then parks the URL in the
// terminal Failed state.
func (f *Frontier) MarkDone(ctx context.Context, normalizedURL string, outcome search.Outcome, links []string, cause error) error {
	f.mu.Lock()
	rec, ok := f.index[normalizedURL]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotKnown, normalizedURL)
	}
	now := f.clock.Now()
	depth := rec.Depth

	switch outcome {
	case search.OutcomeIndexed, search.OutcomeSkipped:
		rec.State = search.StateDone
		rec.Outcome = outcome
		rec.LastCrawledAt = now
		rec.LastError = ""
	case search.OutcomeFailed:
		rec.Attempts++
		if cause != nil {
			rec.LastError = cause.Error()
		}
		// Non-retryable causes (parse failures and the like) are
		// terminal right away; retrying would replay the same result.
		if rec.Attempts >= f.cfg.MaxAttempts || (cause != nil && !search.IsRetryable(cause)) {
			rec.State = search.StateFailed
			rec.Outcome = search.OutcomeFailed
		} else {
			rec.State = search.StatePending
			rec.NextAttemptAt = now.Add(f.backoff(rec.Attempts))
			f.pushLocked(rec.Host, normalizedURL)
		}
	default:
		f.mu.Unlock()
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	snapshot := *rec
	f.mu.Unlock()

	if err := f.store.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("persist %q: %w", normalizedURL, err)
	}
	f.signal()

	if outcome != search.OutcomeIndexed {
		return nil
	}
	for _, link := range links {
		if err := f.Enqueue(ctx, link, depth+1); err != nil {
			f.logger.Debug("skip discovered link", zap.String("link", link), zap.Error(err))
		}
	}
	return nil
}

// Requeue manually returns a terminally Failed URL to Pending with a
// fresh attempt budget.
func (f *Frontier) Requeue(ctx context.Context, normalizedURL string) error {
	f.mu.Lock()
	rec, ok := f.index[normalizedURL]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotKnown, normalizedURL)
	}
	if rec.State != search.StateFailed {
		f.mu.Unlock()
		return fmt.Errorf("url %s is %s, only failed urls can be requeued", normalizedURL, rec.State)
	}
	rec.State = search.StatePending
	rec.Attempts = 0
	rec.NextAttemptAt = time.Time{}
	rec.LastError = ""
	f.pushLocked(rec.Host, normalizedURL)
	snapshot := *rec
	f.mu.Unlock()

	if err := f.store.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("persist %q: %w", normalizedURL, err)
	}
	f.signal()
	return nil
}

// Counts reports frontier state totals.
func (f *Frontier) Counts() search.CrawlCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	var counts search.CrawlCounts
	for _, rec := range f.index {
		switch rec.State {
		case search.StatePending:
			counts.Pending++
		case search.StateInFlight:
			counts.InFlight++
		case search.StateDone:
			counts.Done++
		case search.StateFailed:
			counts.Failed++
		}
	}
	return counts
}

func (f *Frontier) pushLocked(host, normalized string) {
	if _, exists := f.queues[host]; !exists {
		f.ring = append(f.ring, host)
	}
	f.queues[host] = append(f.queues[host], normalized)
}

func (f *Frontier) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Frontier) backoff(attempt int) time.Duration {
	d := f.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= f.cfg.BackoffMax {
			return f.cfg.BackoffMax
		}
	}
	return d
}
