package frontier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intellsearch/intell/internal/search"
)

type fakeURLStore struct {
	mu      sync.Mutex
	records map[string]search.URLRecord
	failing bool
}

func newFakeURLStore() *fakeURLStore {
	return &fakeURLStore{records: map[string]search.URLRecord{}}
}

func (s *fakeURLStore) Upsert(_ context.Context, rec search.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store down")
	}
	s.records[rec.NormalizedURL] = rec
	return nil
}

func (s *fakeURLStore) Load(_ context.Context) ([]search.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]search.URLRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeURLStore) state(url string) search.URLState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[url].State
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGate struct {
	mu   sync.Mutex
	next map[string]time.Time
}

func (g *fakeGate) NextAllowed(host string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next[host]
}

func newFrontier(t *testing.T, store *fakeURLStore, clock search.Clock, gate search.HostGate) *Frontier {
	t.Helper()
	return New(store, gate, clock, nil, Config{
		MaxDepth:    2,
		MaxAttempts: 3,
		MinRevisit:  24 * time.Hour,
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  time.Second,
	})
}

func TestEnqueue_DeduplicatesNormalizedForms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: time.Unix(1000, 0)}, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/a", 0))
	require.NoError(t, f.Enqueue(ctx, "http://x.com/a/", 0))
	require.NoError(t, f.Enqueue(ctx, "http://X.COM/a#frag", 0))

	require.Equal(t, search.CrawlCounts{Pending: 1}, f.Counts())
}

func TestEnqueue_DepthBeyondLimitIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: time.Unix(1000, 0)}, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/deep", 3))
	require.Equal(t, search.CrawlCounts{}, f.Counts())
}

func TestCrawlCycle_SeedWithTwoLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeURLStore()
	f := newFrontier(t, store, &fakeClock{now: time.Unix(1000, 0)}, nil)

	require.NoError(t, f.Enqueue(ctx, "http://example.com", 0))

	rec, err := f.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, "http://example.com", rec.NormalizedURL)
	require.Equal(t, search.StateInFlight, store.state("http://example.com"))

	links := []string{"http://example.com/a", "http://example.com/b"}
	require.NoError(t, f.MarkDone(ctx, rec.NormalizedURL, search.OutcomeIndexed, links, nil))

	require.Equal(t, search.CrawlCounts{Pending: 2, Done: 1}, f.Counts())
	require.Equal(t, search.StateDone, store.state("http://example.com"))
	require.Equal(t, search.StatePending, store.state("http://example.com/a"))
	require.Equal(t, search.StatePending, store.state("http://example.com/b"))
}

func TestMarkDone_FailureExhaustsBudgetThenTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newFrontier(t, newFakeURLStore(), clock, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/flaky", 0))

	for attempt := 1; attempt <= 3; attempt++ {
		rec, err := f.ClaimNext(ctx)
		require.NoError(t, err)
		cause := &search.FetchError{URL: rec.NormalizedURL, StatusCode: 503}
		require.NoError(t, f.MarkDone(ctx, rec.NormalizedURL, search.OutcomeFailed, nil, cause))
		clock.advance(time.Second)
	}

	counts := f.Counts()
	require.Equal(t, 1, counts.Failed)
	require.Equal(t, 0, counts.Pending)

	// Terminal failures are never claimed again.
	claimCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := f.ClaimNext(claimCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMarkDone_NonRetryableCauseIsTerminalImmediately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: time.Unix(1000, 0)}, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/broken", 0))
	rec, err := f.ClaimNext(ctx)
	require.NoError(t, err)

	cause := &search.ParseError{URL: rec.NormalizedURL, Err: errors.New("bad markup")}
	require.NoError(t, f.MarkDone(ctx, rec.NormalizedURL, search.OutcomeFailed, nil, cause))

	counts := f.Counts()
	require.Equal(t, 1, counts.Failed)
	require.Equal(t, 0, counts.Pending)
}

func TestRequeue_ResurrectsFailedURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newFrontier(t, newFakeURLStore(), clock, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/flaky", 0))
	for i := 0; i < 3; i++ {
		rec, err := f.ClaimNext(ctx)
		require.NoError(t, err)
		cause := &search.FetchError{URL: rec.NormalizedURL, StatusCode: 503}
		require.NoError(t, f.MarkDone(ctx, rec.NormalizedURL, search.OutcomeFailed, nil, cause))
		clock.advance(time.Second)
	}
	require.Equal(t, 1, f.Counts().Failed)

	require.NoError(t, f.Requeue(ctx, "http://x.com/flaky"))
	require.Equal(t, 1, f.Counts().Pending)

	rec, err := f.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rec.Attempts)
}

func TestClaimNext_RotatesAcrossHosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: time.Unix(1000, 0)}, nil)

	require.NoError(t, f.Enqueue(ctx, "http://a.com/1", 0))
	require.NoError(t, f.Enqueue(ctx, "http://a.com/2", 0))
	require.NoError(t, f.Enqueue(ctx, "http://b.com/1", 0))

	var hosts []string
	for i := 0; i < 3; i++ {
		rec, err := f.ClaimNext(ctx)
		require.NoError(t, err)
		hosts = append(hosts, rec.Host)
	}
	require.Equal(t, []string{"a.com", "b.com", "a.com"}, hosts)
}

func TestClaimNext_RespectsHostGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1000, 0)
	gate := &fakeGate{next: map[string]time.Time{
		"slow.com": now.Add(time.Hour),
	}}
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: now}, gate)

	require.NoError(t, f.Enqueue(ctx, "http://slow.com/1", 0))
	require.NoError(t, f.Enqueue(ctx, "http://fast.com/1", 0))

	rec, err := f.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, "fast.com", rec.Host)

	claimCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.ClaimNext(claimCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClaimNext_BlocksUntilWorkArrives(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFrontier(t, newFakeURLStore(), &fakeClock{now: time.Unix(1000, 0)}, nil)

	claimed := make(chan search.URLRecord, 1)
	go func() {
		rec, err := f.ClaimNext(ctx)
		if err == nil {
			claimed <- rec
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.Enqueue(ctx, "http://late.com/page", 0))

	select {
	case rec := <-claimed:
		require.Equal(t, "http://late.com/page", rec.NormalizedURL)
	case <-time.After(2 * time.Second):
		t.Fatal("claim never returned after enqueue")
	}
}

func TestRestore_ResumesFromDurableState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeURLStore()
	now := time.Unix(1000, 0)
	seed := []search.URLRecord{
		{NormalizedURL: "http://x.com/pending", Host: "x.com", State: search.StatePending, DiscoveredAt: now},
		{NormalizedURL: "http://x.com/crashed", Host: "x.com", State: search.StateInFlight, DiscoveredAt: now},
		{NormalizedURL: "http://x.com/done", Host: "x.com", State: search.StateDone, DiscoveredAt: now, LastCrawledAt: now},
		{NormalizedURL: "http://x.com/dead", Host: "x.com", State: search.StateFailed, DiscoveredAt: now, Attempts: 3},
	}
	for _, rec := range seed {
		require.NoError(t, store.Upsert(ctx, rec))
	}

	f := newFrontier(t, store, &fakeClock{now: now}, nil)
	require.NoError(t, f.Restore(ctx))

	// The crashed in-flight record is claimable again.
	require.Equal(t, search.CrawlCounts{Pending: 2, Done: 1, Failed: 1}, f.Counts())
}

func TestEnqueue_DoneURLRecrawledOnlyAfterRevisitInterval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newFrontier(t, newFakeURLStore(), clock, nil)

	require.NoError(t, f.Enqueue(ctx, "http://x.com/a", 0))
	rec, err := f.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, f.MarkDone(ctx, rec.NormalizedURL, search.OutcomeIndexed, nil, nil))

	// Too soon: stays Done.
	require.NoError(t, f.Enqueue(ctx, "http://x.com/a", 0))
	require.Equal(t, search.CrawlCounts{Done: 1}, f.Counts())

	clock.advance(25 * time.Hour)
	require.NoError(t, f.Enqueue(ctx, "http://x.com/a", 0))
	require.Equal(t, search.CrawlCounts{Pending: 1}, f.Counts())
}
