// Package indexer turns parsed pages into stored documents, skipping
// writes for content that has not changed since the last crawl.
package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
)

// Indexer implements search.Indexer against a DocumentStore.
type Indexer struct {
	store  search.DocumentStore
	clock  search.Clock
	logger *zap.Logger
	retry  retryPolicy
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithClock overrides the wall clock (tests).
func WithClock(c search.Clock) Option {
	return func(ix *Indexer) { ix.clock = c }
}

// WithRetry overrides the write retry schedule (tests).
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(ix *Indexer) {
		ix.retry = retryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

// New builds an Indexer.
func New(store search.DocumentStore, logger *zap.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		store:  store,
		clock:  search.SystemClock{},
		logger: logger,
		retry:  defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Upsert stores the parsed page under its normalized URL. When the
// stored document already carries the same content hash the write is
// skipped and skipped=true is returned; callers still advance their own
// visit bookkeeping. Upsert is idempotent: re-running it for the same
// page converges on one stored document per URL.
func (ix *Indexer) Upsert(ctx context.Context, normalizedURL string, page search.ParsedPage) (bool, error) {
	existing, found, err := ix.store.Get(ctx, normalizedURL)
	if err != nil {
		// A failed read only disables the skip optimization; the
		// upsert itself remains safe to attempt.
		ix.logger.Warn("document lookup failed, writing unconditionally",
			zap.String("url", normalizedURL),
			zap.Error(err),
		)
		found = false
	}
	if found && existing.ContentHash == page.ContentHash {
		ix.logger.Debug("content unchanged, skipping write",
			zap.String("url", normalizedURL),
			zap.String("hash", page.ContentHash),
		)
		return true, nil
	}

	doc := search.PageDocument{
		URL:           normalizedURL,
		Title:         page.Title,
		Content:       page.Content,
		ContentHash:   page.ContentHash,
		CrawledAt:     ix.clock.Now().UTC(),
		OutboundLinks: page.OutboundLinks,
		Safe:          page.Safe,
	}
	if err := ix.write(ctx, doc); err != nil {
		return false, err
	}
	ix.logger.Debug("document indexed",
		zap.String("url", normalizedURL),
		zap.String("title", doc.Title),
	)
	return false, nil
}

// write attempts the store upsert with bounded jittered retries and
// wraps the final failure in a StoreWriteError.
func (ix *Indexer) write(ctx context.Context, doc search.PageDocument) error {
	var lastErr error
	for attempt := 0; attempt < ix.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.retry.Backoff(attempt - 1)):
			}
		}
		lastErr = ix.store.Upsert(ctx, doc)
		if lastErr == nil {
			return nil
		}
		ix.logger.Warn("document write failed",
			zap.String("url", doc.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return &search.StoreWriteError{URL: doc.URL, Err: lastErr}
}
