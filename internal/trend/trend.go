// Package trend tracks recently popular query terms with exponential
// time decay, so "trending now" favors bursts over long-tail volume.
package trend

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
)

// Config tunes the decay and retention behavior.
type Config struct {
	// HalfLife is the time for a recorded event's weight to halve.
	HalfLife time.Duration
	// Retention drops terms not seen within this window.
	Retention time.Duration
	// BufferSize bounds the intake channel; events beyond it are dropped.
	BufferSize int
	// EvictEvery is the sweep interval for expired terms.
	EvictEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.HalfLife <= 0 {
		c.HalfLife = 6 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.EvictEvery <= 0 {
		c.EvictEvery = 5 * time.Minute
	}
	return c
}

// maxEventsPerTerm caps per-term history; overflow drops the oldest
// events, which carry the least weight.
const maxEventsPerTerm = 512

// entry holds the retained event times for one term, oldest first.
// Scores are computed from these on read, so an event past the
// retention window contributes exactly nothing.
type entry struct {
	events   []time.Time
	lastSeen time.Time
}

// trim drops events outside the retention window and enforces the
// per-term cap. Reports whether any retained events remain.
func (e *entry) trim(now time.Time, retention time.Duration) bool {
	cut := 0
	for cut < len(e.events) && now.Sub(e.events[cut]) > retention {
		cut++
	}
	if over := len(e.events) - cut - maxEventsPerTerm; over > 0 {
		cut += over
	}
	if cut > 0 {
		e.events = append(e.events[:0], e.events[cut:]...)
	}
	return len(e.events) > 0
}

// Tracker implements search.TrendRecorder. Record never blocks: events
// flow through a buffered channel into a single consumer goroutine, and
// overflow is dropped rather than back-pressuring the query path.
type Tracker struct {
	cfg    Config
	lambda float64
	clock  search.Clock
	logger *zap.Logger

	events chan string

	mu    sync.RWMutex
	terms map[string]*entry
}

// TermScore is one trending term with its decayed score.
type TermScore struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// New builds a Tracker. Call Run to start consuming events.
func New(cfg Config, logger *zap.Logger) *Tracker {
	return NewWithClock(cfg, logger, search.SystemClock{})
}

// NewWithClock builds a Tracker on an explicit clock (tests).
func NewWithClock(cfg Config, logger *zap.Logger, clock search.Clock) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		cfg:    cfg,
		lambda: math.Ln2 / cfg.HalfLife.Seconds(),
		clock:  clock,
		logger: logger,
		events: make(chan string, cfg.BufferSize),
		terms:  make(map[string]*entry),
	}
}

// Record implements search.TrendRecorder. Full buffer drops the event.
func (t *Tracker) Record(term string) {
	select {
	case t.events <- term:
	default:
		t.logger.Debug("trend buffer full, dropping event", zap.String("term", term))
	}
}

// Run consumes recorded events until ctx is canceled, sweeping expired
// terms periodically.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.EvictEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case term := <-t.events:
			t.ingest(term)
		case <-ticker.C:
			t.evict()
		}
	}
}

// ingest appends one event to each cleaned term's retained history.
func (t *Tracker) ingest(raw string) {
	now := t.clock.Now()
	for _, term := range CleanTerms(raw) {
		t.mu.Lock()
		e, ok := t.terms[term]
		if !ok {
			e = &entry{}
			t.terms[term] = e
		}
		e.events = append(e.events, now)
		e.lastSeen = now
		e.trim(now, t.cfg.Retention)
		t.mu.Unlock()
	}
}

// evict drops expired events and forgets terms with none left.
func (t *Tracker) evict() {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for term, e := range t.terms {
		if !e.trim(now, t.cfg.Retention) {
			delete(t.terms, term)
		}
	}
}

// score sums the decayed weight of the term's retained events as of now.
func (t *Tracker) score(e *entry, now time.Time) float64 {
	var total float64
	for _, at := range e.events {
		age := now.Sub(at)
		if age > t.cfg.Retention {
			continue
		}
		total += t.decay(age)
	}
	return total
}

// TopTrending returns up to k terms ordered by decayed score (desc),
// breaking ties by most recent sighting, then lexically.
func (t *Tracker) TopTrending(k int) []TermScore {
	if k <= 0 {
		return nil
	}
	now := t.clock.Now()

	t.mu.RLock()
	scored := make([]struct {
		TermScore
		lastSeen time.Time
	}, 0, len(t.terms))
	for term, e := range t.terms {
		score := t.score(e, now)
		if score == 0 {
			continue
		}
		scored = append(scored, struct {
			TermScore
			lastSeen time.Time
		}{
			TermScore: TermScore{Term: term, Score: score},
			lastSeen:  e.lastSeen,
		})
	}
	t.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].lastSeen.Equal(scored[j].lastSeen) {
			return scored[i].lastSeen.After(scored[j].lastSeen)
		}
		return scored[i].Term < scored[j].Term
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	out := make([]TermScore, len(scored))
	for i, s := range scored {
		out[i] = s.TermScore
	}
	return out
}

// decay returns the multiplicative weight loss over elapsed time.
func (t *Tracker) decay(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return math.Exp(-t.lambda * elapsed.Seconds())
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are never trending on their own.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "what": {},
	"how": {}, "who": {}, "why": {}, "when": {}, "where": {},
	"are": {}, "was": {}, "this": {}, "that": {}, "from": {},
}

// CleanTerms normalizes a raw query into trend-worthy terms: lowercase
// word characters only, stop words and short fragments removed.
func CleanTerms(raw string) []string {
	words := wordPattern.FindAllString(strings.ToLower(raw), -1)
	out := words[:0]
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
