package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intellsearch/intell/internal/search"
)

func doc(url, title, content string, crawledAt time.Time) search.PageDocument {
	return search.PageDocument{
		URL:         url,
		Title:       title,
		Content:     content,
		ContentHash: "hash-" + url,
		CrawledAt:   crawledAt,
		Safe:        true,
	}
}

func TestAutoFuzziness(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, AutoFuzziness("go"))
	require.Equal(t, 1, AutoFuzziness("rust"))
	require.Equal(t, 2, AutoFuzziness("python"))
	require.Equal(t, 2, AutoFuzziness("the elasticsearch guide"))
}

func TestMemoryStore_FuzzyTolerance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, doc("http://py.org", "Welcome to Python", "python is a language", time.Unix(1000, 0))))

	// One transposition away; within tolerance 2 for a 6-rune term.
	page, err := s.Search(ctx, search.SearchQuery{Term: "pyhton", Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Hits, 1)
	require.Equal(t, "http://py.org", page.Hits[0].Document.URL)

	// Far beyond tolerance: no match.
	page, err = s.Search(ctx, search.SearchQuery{Term: "haskell", Size: 10})
	require.NoError(t, err)
	require.Empty(t, page.Hits)
}

func TestMemoryStore_TitleOutranksContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, doc("http://a.com", "python tutorial", "learning material", time.Unix(1000, 0))))
	require.NoError(t, s.Upsert(ctx, doc("http://b.com", "misc notes", "python python python mentioned in passing", time.Unix(2000, 0))))

	page, err := s.Search(ctx, search.SearchQuery{Term: "python", Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Hits, 2)
	require.Equal(t, "http://a.com", page.Hits[0].Document.URL)
	require.Equal(t, titleBoost, page.Hits[0].Score)
	require.Equal(t, float64(3), page.Hits[1].Score)
}

func TestMemoryStore_PaginationStableUnderMidScrollInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Unix(1000, 0)
	for i := 0; i < 7; i++ {
		url := fmt.Sprintf("http://site.com/%d", i)
		require.NoError(t, s.Upsert(ctx, doc(url, "shared topic", "equal weight", base.Add(time.Duration(i)*time.Minute))))
	}

	seen := map[string]int{}
	var cursor []string
	pages := 0
	for {
		page, err := s.Search(ctx, search.SearchQuery{Term: "topic", Size: 3, After: cursor})
		require.NoError(t, err)
		if len(page.Hits) == 0 {
			break
		}
		for _, hit := range page.Hits {
			seen[hit.Document.URL]++
		}
		cursor = page.Hits[len(page.Hits)-1].SortKey
		pages++

		// A document indexed mid-scroll must not shift page boundaries.
		if pages == 1 {
			require.NoError(t, s.Upsert(ctx, doc("http://site.com/new", "shared topic", "equal weight",
				base.Add(time.Hour))))
		}
	}

	require.Len(t, seen, 7)
	for url, count := range seen {
		require.Equal(t, 1, count, "duplicate result for %s", url)
	}
}

func TestMemoryStore_PaginationExactOnceMonotonicOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Unix(1000, 0)
	require.NoError(t, s.Upsert(ctx, doc("http://a.com", "query term here", "query term", base)))
	require.NoError(t, s.Upsert(ctx, doc("http://b.com", "query term here", "query term", base.Add(time.Minute))))
	require.NoError(t, s.Upsert(ctx, doc("http://c.com", "other", "query appears once", base)))

	var all []search.Hit
	var cursor []string
	for {
		page, err := s.Search(ctx, search.SearchQuery{Term: "query", Size: 1, After: cursor})
		require.NoError(t, err)
		if len(page.Hits) == 0 {
			break
		}
		all = append(all, page.Hits...)
		cursor = page.Hits[len(page.Hits)-1].SortKey
	}

	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		prev, curr := all[i-1], all[i]
		ordered := curr.Score < prev.Score ||
			(curr.Score == prev.Score && curr.Document.CrawledAt.Before(prev.Document.CrawledAt)) ||
			(curr.Score == prev.Score && curr.Document.CrawledAt.Equal(prev.Document.CrawledAt) &&
				curr.Document.URL > prev.Document.URL)
		require.True(t, ordered, "hits %d and %d out of order", i-1, i)
	}
}

func TestMemoryStore_SafeSearchFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	unsafe := doc("http://bad.com", "spicy topic", "topic", time.Unix(1000, 0))
	unsafe.Safe = false
	require.NoError(t, s.Upsert(ctx, unsafe))
	require.NoError(t, s.Upsert(ctx, doc("http://good.com", "mild topic", "topic", time.Unix(1000, 0))))

	page, err := s.Search(ctx, search.SearchQuery{Term: "topic", Size: 10, SafeOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Hits, 1)
	require.Equal(t, "http://good.com", page.Hits[0].Document.URL)
}

func TestMemoryStore_Suggest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, doc("http://a.com", "Python Tutorial", "", time.Unix(1000, 0))))
	require.NoError(t, s.Upsert(ctx, doc("http://b.com", "Python Reference", "", time.Unix(1000, 0))))
	require.NoError(t, s.Upsert(ctx, doc("http://c.com", "Go Guide", "", time.Unix(1000, 0))))

	got, err := s.Suggest(ctx, "pyt", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"Python Reference", "Python Tutorial"}, got)
}

func TestBleveStore_UpsertGetOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := OpenMemOnly()
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	original := doc("http://example.com", "Example", "first version", time.Unix(1000, 0))
	require.NoError(t, s.Upsert(ctx, original))

	got, ok, err := s.Get(ctx, "http://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original.ContentHash, got.ContentHash)

	updated := original
	updated.Content = "second version"
	updated.ContentHash = "hash-v2"
	require.NoError(t, s.Upsert(ctx, updated))

	got, ok, err = s.Get(ctx, "http://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hash-v2", got.ContentHash)

	_, ok, err = s.Get(ctx, "http://missing.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBleveStore_FuzzySearchAndRanking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := OpenMemOnly()
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	require.NoError(t, s.Upsert(ctx, doc("http://py.org", "The Python Language", "python reference and tutorials", time.Unix(1000, 0))))
	require.NoError(t, s.Upsert(ctx, doc("http://other.org", "Cooking at Home", "recipes and techniques", time.Unix(1000, 0))))

	page, err := s.Search(ctx, search.SearchQuery{Term: "pyhton", Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Hits, 1)
	require.Equal(t, "http://py.org", page.Hits[0].Document.URL)
	require.NotEmpty(t, page.Hits[0].SortKey)
}

func TestBleveStore_Healthy(t *testing.T) {
	t.Parallel()

	s, err := OpenMemOnly()
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	require.NoError(t, s.Healthy(context.Background()))
}
