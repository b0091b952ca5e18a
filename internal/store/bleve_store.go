// Package store drives the full-text document store. The engine's
// ranking is treated as a black box satisfying a documented contract:
// bounded edit-distance fuzzy matching, field weighting with title
// boosted over content, and search-after pagination.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/intellsearch/intell/internal/search"
)

// titleBoost mirrors the title^3 weighting of the query contract.
const titleBoost = 3.0

// dataField holds the full document JSON, stored but not indexed, so
// hits can be rehydrated without a second lookup.
const dataField = "_data"

// BleveStore implements search.DocumentStore on an embedded bleve index.
type BleveStore struct {
	idx bleve.Index
}

// Open opens the index at path, creating it with the page mapping when
// it does not exist yet.
func Open(path string) (*BleveStore, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, pageMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", path, err)
	}
	return &BleveStore{idx: idx}, nil
}

// OpenMemOnly builds an ephemeral index (tests, local development).
func OpenMemOnly() (*BleveStore, error) {
	idx, err := bleve.NewMemOnly(pageMapping())
	if err != nil {
		return nil, fmt.Errorf("open in-memory index: %w", err)
	}
	return &BleveStore{idx: idx}, nil
}

func pageMapping() *mapping.IndexMappingImpl {
	title := bleve.NewTextFieldMapping()
	title.Store = false

	content := bleve.NewTextFieldMapping()
	content.Store = false

	urlField := bleve.NewTextFieldMapping()
	urlField.Analyzer = keyword.Name
	urlField.Store = false

	crawled := bleve.NewDateTimeFieldMapping()
	crawled.Store = false

	safe := bleve.NewBooleanFieldMapping()
	safe.Store = false

	data := bleve.NewTextFieldMapping()
	data.Store = true
	data.Index = false
	data.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", title)
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("url", urlField)
	doc.AddFieldMappingsAt("crawled_at", crawled)
	doc.AddFieldMappingsAt("safe", safe)
	doc.AddFieldMappingsAt(dataField, data)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Upsert indexes a page keyed by its normalized URL; re-crawls
// overwrite in place.
func (s *BleveStore) Upsert(_ context.Context, doc search.PageDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	fields := map[string]any{
		"url":        doc.URL,
		"title":      doc.Title,
		"content":    doc.Content,
		"crawled_at": doc.CrawledAt,
		"safe":       doc.Safe,
		dataField:    string(payload),
	}
	if err := s.idx.Index(doc.URL, fields); err != nil {
		return fmt.Errorf("index %q: %w", doc.URL, err)
	}
	return nil
}

// Get returns the stored document for a URL, if present.
func (s *BleveStore) Get(_ context.Context, url string) (search.PageDocument, bool, error) {
	raw, err := s.idx.Document(url)
	if err != nil {
		return search.PageDocument{}, false, fmt.Errorf("load %q: %w", url, err)
	}
	if raw == nil {
		return search.PageDocument{}, false, nil
	}
	var payload []byte
	raw.VisitFields(func(f index.Field) {
		if f.Name() == dataField {
			payload = f.Value()
		}
	})
	if payload == nil {
		return search.PageDocument{}, false, fmt.Errorf("document %q has no stored payload", url)
	}
	var doc search.PageDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return search.PageDocument{}, false, fmt.Errorf("unmarshal %q: %w", url, err)
	}
	return doc, true, nil
}

// Search issues a ranked fuzzy multi-field query. Results are ordered
// by (score desc, crawled_at desc, id asc); q.After resumes strictly
// after a previous hit's SortKey so pagination stays stable while
// documents are indexed mid-scroll.
func (s *BleveStore) Search(ctx context.Context, q search.SearchQuery) (search.SearchPage, error) {
	fuzziness := AutoFuzziness(q.Term)

	titleQuery := bleve.NewMatchQuery(q.Term)
	titleQuery.SetField("title")
	titleQuery.SetBoost(titleBoost)
	titleQuery.SetFuzziness(fuzziness)

	contentQuery := bleve.NewMatchQuery(q.Term)
	contentQuery.SetField("content")
	contentQuery.SetFuzziness(fuzziness)

	var ranked bquery.Query = bleve.NewDisjunctionQuery(titleQuery, contentQuery)
	if q.SafeOnly {
		safe := bleve.NewBoolFieldQuery(true)
		safe.SetField("safe")
		ranked = bleve.NewConjunctionQuery(ranked, safe)
	}

	req := bleve.NewSearchRequestOptions(ranked, q.Size, 0, false)
	req.Fields = []string{dataField}
	req.SortBy([]string{"-_score", "-crawled_at", "_id"})
	if len(q.After) > 0 {
		req.SearchAfter = q.After
	}

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return search.SearchPage{}, fmt.Errorf("search %q: %w", q.Term, err)
	}

	page := search.SearchPage{Total: res.Total}
	for _, hit := range res.Hits {
		payload, ok := hit.Fields[dataField].(string)
		if !ok {
			return search.SearchPage{}, fmt.Errorf("hit %q missing stored payload", hit.ID)
		}
		var doc search.PageDocument
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return search.SearchPage{}, fmt.Errorf("unmarshal hit %q: %w", hit.ID, err)
		}
		page.Hits = append(page.Hits, search.Hit{
			Document: doc,
			Score:    hit.Score,
			SortKey:  append([]string(nil), hit.Sort...),
		})
	}
	return page, nil
}

// Suggest returns up to limit distinct titles matching a prefix of the
// last query token, for type-ahead completion.
func (s *BleveStore) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil, nil
	}
	pq := bleve.NewPrefixQuery(prefix)
	pq.SetField("title")

	req := bleve.NewSearchRequestOptions(pq, limit*2, 0, false)
	req.Fields = []string{dataField}
	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("suggest %q: %w", prefix, err)
	}

	var suggestions []string
	seen := make(map[string]struct{})
	for _, hit := range res.Hits {
		payload, ok := hit.Fields[dataField].(string)
		if !ok {
			continue
		}
		var doc search.PageDocument
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			continue
		}
		if doc.Title == "" {
			continue
		}
		if _, dup := seen[doc.Title]; dup {
			continue
		}
		seen[doc.Title] = struct{}{}
		suggestions = append(suggestions, doc.Title)
		if len(suggestions) >= limit {
			break
		}
	}
	return suggestions, nil
}

// Healthy probes the index.
func (s *BleveStore) Healthy(_ context.Context) error {
	if _, err := s.idx.DocCount(); err != nil {
		return fmt.Errorf("index probe: %w", err)
	}
	return nil
}

// Close releases the index.
func (s *BleveStore) Close() error {
	if err := s.idx.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// AutoFuzziness maps term length to an edit-distance tolerance the way
// Elasticsearch's AUTO fuzziness does: exact under 3 runes, one edit up
// to 5, two edits from 6.
func AutoFuzziness(term string) int {
	longest := 0
	for _, token := range strings.Fields(term) {
		if n := utf8.RuneCountInString(token); n > longest {
			longest = n
		}
	}
	switch {
	case longest < 3:
		return 0
	case longest < 6:
		return 1
	default:
		return 2
	}
}
