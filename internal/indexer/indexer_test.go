package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
	"github.com/intellsearch/intell/internal/store"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// flakyStore fails the first n writes, then delegates.
type flakyStore struct {
	search.DocumentStore
	failures int
	writes   int
}

func (s *flakyStore) Upsert(ctx context.Context, doc search.PageDocument) error {
	s.writes++
	if s.writes <= s.failures {
		return store.ErrMemoryStoreDown
	}
	return s.DocumentStore.Upsert(ctx, doc)
}

func page(content string) search.ParsedPage {
	return search.ParsedPage{
		Title:       "Example",
		Content:     content,
		ContentHash: "hash-" + content,
		Safe:        true,
	}
}

func TestUpsert_StoresNewDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ix := New(mem, zap.NewNop(), WithClock(fixedClock{at: now}))

	skipped, err := ix.Upsert(ctx, "http://example.com", page("first"))
	require.NoError(t, err)
	require.False(t, skipped)

	doc, ok, err := mem.Get(ctx, "http://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hash-first", doc.ContentHash)
	require.Equal(t, now, doc.CrawledAt)
}

func TestUpsert_SkipsUnchangedContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemoryStore()
	ix := New(mem, zap.NewNop())

	skipped, err := ix.Upsert(ctx, "http://example.com", page("same"))
	require.NoError(t, err)
	require.False(t, skipped)

	before, _, err := mem.Get(ctx, "http://example.com")
	require.NoError(t, err)

	skipped, err = ix.Upsert(ctx, "http://example.com", page("same"))
	require.NoError(t, err)
	require.True(t, skipped)

	after, _, err := mem.Get(ctx, "http://example.com")
	require.NoError(t, err)
	require.Equal(t, before.CrawledAt, after.CrawledAt, "skip must not rewrite the document")
}

func TestUpsert_ReindexesChangedContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemoryStore()
	ix := New(mem, zap.NewNop())

	_, err := ix.Upsert(ctx, "http://example.com", page("v1"))
	require.NoError(t, err)

	skipped, err := ix.Upsert(ctx, "http://example.com", page("v2"))
	require.NoError(t, err)
	require.False(t, skipped)

	doc, _, err := mem.Get(ctx, "http://example.com")
	require.NoError(t, err)
	require.Equal(t, "hash-v2", doc.ContentHash)
}

func TestUpsert_RetriesTransientWriteFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flaky := &flakyStore{DocumentStore: store.NewMemoryStore(), failures: 2}
	ix := New(flaky, zap.NewNop(), WithRetry(3, time.Millisecond, 2*time.Millisecond))

	skipped, err := ix.Upsert(ctx, "http://example.com", page("retried"))
	require.NoError(t, err)
	require.False(t, skipped)
	require.Equal(t, 3, flaky.writes)
}

func TestUpsert_WrapsExhaustedRetriesInStoreWriteError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flaky := &flakyStore{DocumentStore: store.NewMemoryStore(), failures: 10}
	ix := New(flaky, zap.NewNop(), WithRetry(2, time.Millisecond, 2*time.Millisecond))

	_, err := ix.Upsert(ctx, "http://example.com", page("doomed"))
	var writeErr *search.StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, "http://example.com", writeErr.URL)
	require.Equal(t, 2, flaky.writes)
	require.True(t, search.IsRetryable(err))
}
