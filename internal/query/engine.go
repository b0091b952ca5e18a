// Package query turns client search requests into ranked result pages:
// validation, store querying, snippet extraction, cursor pagination,
// instant answers, and trend recording.
package query

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
	maxTermLen      = 256
	snippetLen      = 160
)

// Engine executes search and suggest requests against the document
// store. Trend recording is fire-and-forget: a slow or full tracker
// never delays a response.
type Engine struct {
	store  search.DocumentStore
	trends search.TrendRecorder
	clock  search.Clock
	logger *zap.Logger
}

// Request is one client search request after transport decoding.
type Request struct {
	Term     string
	Size     int
	Cursor   string
	SafeOnly bool
}

// New builds an Engine.
func New(store search.DocumentStore, trends search.TrendRecorder, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		trends: trends,
		clock:  search.SystemClock{},
		logger: logger,
	}
}

// Search runs one validated, ranked, cursor-paginated query.
func (e *Engine) Search(ctx context.Context, req Request) (search.ResultPage, error) {
	term := strings.TrimSpace(req.Term)
	if term == "" {
		return search.ResultPage{}, search.NewValidationError("query term must not be empty")
	}
	if len(term) > maxTermLen {
		return search.ResultPage{}, search.NewValidationError("query term exceeds %d characters", maxTermLen)
	}
	size := req.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	after, err := DecodeCursor(req.Cursor)
	if err != nil {
		return search.ResultPage{}, search.NewValidationError("malformed cursor")
	}

	if e.trends != nil {
		e.trends.Record(term)
	}

	page, err := e.store.Search(ctx, search.SearchQuery{
		Term:     term,
		Size:     size,
		After:    after,
		SafeOnly: req.SafeOnly,
	})
	if err != nil {
		e.logger.Error("document store query failed", zap.String("term", term), zap.Error(err))
		return search.ResultPage{}, fmt.Errorf("%w: %v", search.ErrStoreUnavailable, err)
	}

	out := search.ResultPage{
		Query:   term,
		Total:   page.Total,
		Results: make([]search.Result, 0, len(page.Hits)),
	}
	for _, hit := range page.Hits {
		out.Results = append(out.Results, search.Result{
			Title:      hit.Document.Title,
			URL:        hit.Document.URL,
			DisplayURL: displayURL(hit.Document.URL),
			Snippet:    Snippet(hit.Document.Content, term, snippetLen),
			Score:      hit.Score,
			CrawledAt:  hit.Document.CrawledAt,
			Safe:       hit.Document.Safe,
		})
	}
	if len(page.Hits) == size {
		out.NextCursor = EncodeCursor(page.Hits[len(page.Hits)-1].SortKey)
	}
	if after == nil {
		out.InstantAnswer = Answer(term, e.clock)
	}
	return out, nil
}

// Suggest returns type-ahead completions for a prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, search.NewValidationError("suggest prefix must not be empty")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	got, err := e.store.Suggest(ctx, prefix, limit)
	if err != nil {
		e.logger.Error("suggest query failed", zap.String("prefix", prefix), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", search.ErrStoreUnavailable, err)
	}
	return got, nil
}

// EncodeCursor packs a store sort key into an opaque URL-safe token.
func EncodeCursor(sortKey []string) string {
	if len(sortKey) == 0 {
		return ""
	}
	raw, err := json.Marshal(sortKey)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor unpacks a token produced by EncodeCursor. An empty token
// means the first page.
func DecodeCursor(token string) ([]string, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var sortKey []string
	if err := json.Unmarshal(raw, &sortKey); err != nil {
		return nil, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if len(sortKey) == 0 {
		return nil, fmt.Errorf("empty cursor")
	}
	return sortKey, nil
}

// Snippet returns a window of content around the first term match,
// trimmed to word boundaries with ellipses at cut edges.
func Snippet(content, term string, width int) string {
	if content == "" {
		return ""
	}
	if width <= 0 {
		width = snippetLen
	}
	lower := strings.ToLower(content)
	pos := -1
	for _, token := range strings.Fields(strings.ToLower(term)) {
		if i := strings.Index(lower, token); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - width/3
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(content) {
		end = len(content)
		if start = end - width; start < 0 {
			start = 0
		}
	}

	// Snap to word boundaries so the window never splits a word.
	if start > 0 {
		if i := strings.IndexByte(content[start:end], ' '); i >= 0 {
			start += i + 1
		}
	}
	if end < len(content) {
		if i := strings.LastIndexByte(content[start:end], ' '); i > 0 {
			end = start + i
		}
	}

	snippet := strings.TrimSpace(content[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(content) {
		snippet += "…"
	}
	return snippet
}

// displayURL renders the host (and shortened path) shown under a title.
func displayURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	display := u.Host
	if u.Path != "" && u.Path != "/" {
		display += u.Path
	}
	return display
}
