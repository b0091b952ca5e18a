package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/frontier"
	"github.com/intellsearch/intell/internal/metrics"
	"github.com/intellsearch/intell/internal/parser"
	"github.com/intellsearch/intell/internal/search"
)

// Pool drives claimed URLs through fetch, parse, and index with a
// fixed number of workers. Politeness is enforced per host through the
// shared Schedule, so adding workers widens breadth across hosts
// without tightening the gap within one.
type Pool struct {
	frontier *frontier.Frontier
	fetcher  search.Fetcher
	parser   search.Parser
	indexer  search.Indexer
	robots   RobotsPolicy
	schedule *Schedule
	logger   *zap.Logger
	workers  int
}

// NewPool builds a Pool. workers must be at least 1.
func NewPool(
	fr *frontier.Frontier,
	fetcher search.Fetcher,
	p search.Parser,
	ix search.Indexer,
	robots RobotsPolicy,
	schedule *Schedule,
	workers int,
	logger *zap.Logger,
) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		frontier: fr,
		fetcher:  fetcher,
		parser:   p,
		indexer:  ix,
		robots:   robots,
		schedule: schedule,
		logger:   logger,
		workers:  workers,
	}
}

// Run blocks until ctx is canceled, then drains all workers.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		rec, err := p.frontier.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("worker stopping")
				return
			}
			logger.Error("claim failed", zap.Error(err))
			continue
		}
		metrics.IncActiveWorkers()
		p.processURL(ctx, logger, rec)
		metrics.DecActiveWorkers()
	}
}

// processURL runs one claimed URL through the pipeline and reports the
// outcome back to the frontier.
func (p *Pool) processURL(ctx context.Context, logger *zap.Logger, rec search.URLRecord) {
	outcome, links, cause := p.crawl(ctx, logger, rec)
	if ctx.Err() != nil && cause != nil {
		// Shutdown interrupted the attempt; leave the record for the
		// restart's Restore pass instead of burning an attempt.
		return
	}
	if err := p.frontier.MarkDone(ctx, rec.NormalizedURL, outcome, links, cause); err != nil {
		logger.Error("mark done failed", zap.String("url", rec.NormalizedURL), zap.Error(err))
	}
	metrics.ObserveCrawl(rec.Host, string(outcome))
}

func (p *Pool) crawl(ctx context.Context, logger *zap.Logger, rec search.URLRecord) (search.Outcome, []string, error) {
	url := rec.NormalizedURL

	if !p.robots.Allowed(ctx, url) {
		logger.Debug("disallowed by robots", zap.String("url", url))
		return search.OutcomeSkipped, nil, nil
	}

	crawlDelay := p.robots.CrawlDelay(ctx, url)
	wait := p.schedule.Reserve(rec.Host, crawlDelay)
	if wait > 0 {
		metrics.ObservePolitenessWait(rec.Host, wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return search.OutcomeFailed, nil, err
		}
	}

	resp, err := p.fetcher.Fetch(ctx, url)
	p.schedule.Advance(rec.Host, crawlDelay)
	if err != nil {
		logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return search.OutcomeFailed, nil, err
	}
	metrics.ObserveFetch(rec.Host, resp.StatusCode, len(resp.Body), resp.Duration)
	if resp.Truncated {
		// A capped body would index a partial page; skip it for good.
		logger.Debug("body over size cap", zap.String("url", url), zap.Int("bytes", len(resp.Body)))
		return search.OutcomeSkipped, nil, nil
	}

	page, err := p.parser.Parse(url, resp.ContentType, resp.Body)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedContent) {
			logger.Debug("unsupported content", zap.String("url", url), zap.String("content_type", resp.ContentType))
			return search.OutcomeSkipped, nil, nil
		}
		// Extraction is deterministic, so the frontier parks parse
		// failures terminally instead of retrying the same bytes.
		logger.Warn("parse failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveParseFailure(rec.Host)
		return search.OutcomeFailed, nil, &search.ParseError{URL: url, Err: err}
	}

	skipped, err := p.indexer.Upsert(ctx, url, page)
	if err != nil {
		logger.Error("index failed", zap.String("url", url), zap.Error(err))
		return search.OutcomeFailed, nil, err
	}
	if skipped {
		// Unchanged content still counts as a successful visit.
		return search.OutcomeSkipped, nil, nil
	}
	logger.Info("page indexed",
		zap.String("url", url),
		zap.Int("depth", rec.Depth),
		zap.Int("links", len(page.OutboundLinks)),
	)
	return search.OutcomeIndexed, page.OutboundLinks, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
