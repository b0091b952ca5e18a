package fetch

import (
	"strings"
	"sync"
	"time"

	"github.com/intellsearch/intell/internal/search"
)

// Schedule tracks when each host may next be fetched. It implements
// search.HostGate for the frontier and is advanced by workers after
// every fetch, so the per-host gap holds regardless of pool size.
type Schedule struct {
	minDelay time.Duration
	clock    search.Clock

	mu   sync.Mutex
	next map[string]time.Time
}

// NewSchedule builds a Schedule enforcing at least minDelay between
// fetches to the same host.
func NewSchedule(minDelay time.Duration, clock search.Clock) *Schedule {
	if clock == nil {
		clock = search.SystemClock{}
	}
	return &Schedule{
		minDelay: minDelay,
		clock:    clock,
		next:     make(map[string]time.Time),
	}
}

// NextAllowed implements search.HostGate.
func (s *Schedule) NextAllowed(host string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[strings.ToLower(host)]
}

// Reserve claims the host's next send slot, so concurrent workers never
// target the same host inside the politeness gap. The gate is armed
// with the larger of the global minimum and the host's robots crawl
// delay at reservation time, before the fetch is issued; a slow fetch
// therefore cannot let a second worker slip in under the crawl delay.
// It returns how long the caller must still wait before sending.
func (s *Schedule) Reserve(host string, crawlDelay time.Duration) time.Duration {
	key := strings.ToLower(host)
	delay := s.minDelay
	if crawlDelay > delay {
		delay = crawlDelay
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.next[key].Sub(now)
	if wait < 0 {
		wait = 0
	}
	s.next[key] = now.Add(wait + delay)
	return wait
}

// Advance re-arms the host gate after a fetch, honoring the larger of
// the global minimum and the host's robots crawl delay.
func (s *Schedule) Advance(host string, crawlDelay time.Duration) {
	delay := s.minDelay
	if crawlDelay > delay {
		delay = crawlDelay
	}
	key := strings.ToLower(host)
	at := s.clock.Now().Add(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.next[key]) {
		s.next[key] = at
	}
}
