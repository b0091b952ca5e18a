package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/intellsearch/intell/internal/search"
)

// MemoryStore is an in-memory search.DocumentStore for tests and local
// development. It honors the same query contract as the bleve store:
// bounded edit-distance matching, title boosted over content, and
// stable (score desc, crawled_at desc, url asc) ordering with
// search-after pagination.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]search.PageDocument

	// FailWrites and FailReads force errors for failure-path tests.
	FailWrites bool
	FailReads  bool
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]search.PageDocument)}
}

type memErr string

func (e memErr) Error() string { return string(e) }

// ErrMemoryStoreDown is returned when failure injection is enabled.
const ErrMemoryStoreDown = memErr("memory store down")

// Upsert implements search.DocumentStore.
func (s *MemoryStore) Upsert(_ context.Context, doc search.PageDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return ErrMemoryStoreDown
	}
	s.docs[doc.URL] = doc
	return nil
}

// Get implements search.DocumentStore.
func (s *MemoryStore) Get(_ context.Context, url string) (search.PageDocument, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return search.PageDocument{}, false, ErrMemoryStoreDown
	}
	doc, ok := s.docs[url]
	return doc, ok, nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

type scoredDoc struct {
	doc   search.PageDocument
	score float64
}

// Search implements search.DocumentStore.
func (s *MemoryStore) Search(_ context.Context, q search.SearchQuery) (search.SearchPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return search.SearchPage{}, ErrMemoryStoreDown
	}

	tokens := tokenize(q.Term)
	var matched []scoredDoc
	for _, doc := range s.docs {
		if q.SafeOnly && !doc.Safe {
			continue
		}
		score := scoreDocument(doc, tokens)
		if score > 0 {
			matched = append(matched, scoredDoc{doc: doc, score: score})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return lessHits(matched[i], matched[j])
	})

	after, err := decodeSortKey(q.After)
	if err != nil {
		return search.SearchPage{}, err
	}

	page := search.SearchPage{Total: uint64(len(matched))}
	for _, m := range matched {
		if after != nil && !afterCursor(m, *after) {
			continue
		}
		page.Hits = append(page.Hits, search.Hit{
			Document: m.doc,
			Score:    m.score,
			SortKey:  encodeSortKey(m),
		})
		if q.Size > 0 && len(page.Hits) >= q.Size {
			break
		}
	}
	return page, nil
}

// Suggest implements search.DocumentStore.
func (s *MemoryStore) Suggest(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, ErrMemoryStoreDown
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil, nil
	}

	var titles []string
	seen := make(map[string]struct{})
	for _, doc := range s.docs {
		for _, token := range tokenize(doc.Title) {
			if !strings.HasPrefix(token, prefix) {
				continue
			}
			if _, dup := seen[doc.Title]; !dup {
				seen[doc.Title] = struct{}{}
				titles = append(titles, doc.Title)
			}
			break
		}
	}
	sort.Strings(titles)
	if len(titles) > limit {
		titles = titles[:limit]
	}
	return titles, nil
}

// Healthy implements search.DocumentStore.
func (s *MemoryStore) Healthy(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return ErrMemoryStoreDown
	}
	return nil
}

// Close implements search.DocumentStore.
func (s *MemoryStore) Close() error { return nil }

func scoreDocument(doc search.PageDocument, tokens []string) float64 {
	titleTokens := tokenize(doc.Title)
	contentTokens := tokenize(doc.Content)

	var score float64
	for _, token := range tokens {
		tolerance := AutoFuzziness(token)
		score += titleBoost * countFuzzy(titleTokens, token, tolerance)
		score += countFuzzy(contentTokens, token, tolerance)
	}
	return score
}

func countFuzzy(haystack []string, needle string, tolerance int) float64 {
	var n float64
	for _, candidate := range haystack {
		if editDistance(candidate, needle) <= tolerance {
			n++
		}
	}
	return n
}

func lessHits(a, b scoredDoc) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.doc.CrawledAt.Equal(b.doc.CrawledAt) {
		return a.doc.CrawledAt.After(b.doc.CrawledAt)
	}
	return a.doc.URL < b.doc.URL
}

// afterCursor reports whether m sorts strictly after the cursor key.
func afterCursor(m scoredDoc, after sortKey) bool {
	if m.score != after.score {
		return m.score < after.score
	}
	if !m.doc.CrawledAt.Equal(after.crawledAt) {
		return m.doc.CrawledAt.Before(after.crawledAt)
	}
	return m.doc.URL > after.url
}

type sortKey struct {
	score     float64
	crawledAt time.Time
	url       string
}

func encodeSortKey(m scoredDoc) []string {
	return []string{
		strconv.FormatFloat(m.score, 'f', 8, 64),
		m.doc.CrawledAt.UTC().Format(time.RFC3339Nano),
		m.doc.URL,
	}
}

func decodeSortKey(parts []string) (*sortKey, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	if len(parts) != 3 {
		return nil, memErr("malformed cursor")
	}
	score, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, memErr("malformed cursor score")
	}
	at, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, memErr("malformed cursor timestamp")
	}
	return &sortKey{score: score, crawledAt: at, url: parts[2]}, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

// editDistance computes plain Levenshtein distance.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
