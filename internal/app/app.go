// Package app initializes and holds the long-lived application
// services, acting as the dependency injection container for commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/api"
	"github.com/intellsearch/intell/internal/config"
	"github.com/intellsearch/intell/internal/fetch"
	"github.com/intellsearch/intell/internal/frontier"
	"github.com/intellsearch/intell/internal/frontier/postgres"
	"github.com/intellsearch/intell/internal/indexer"
	"github.com/intellsearch/intell/internal/logging"
	"github.com/intellsearch/intell/internal/metrics"
	"github.com/intellsearch/intell/internal/parser"
	"github.com/intellsearch/intell/internal/query"
	"github.com/intellsearch/intell/internal/search"
	"github.com/intellsearch/intell/internal/store"
	"github.com/intellsearch/intell/internal/trend"
)

// App wires the crawl pipeline and the query surface together. It is
// built once at startup and handed to the commands that need it.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Docs     search.DocumentStore
	Frontier *frontier.Frontier
	Pool     *fetch.Pool
	Tracker  *trend.Tracker
	Engine   *query.Engine
	Server   *api.Server

	urlStore *postgres.URLStore
}

// New builds an App from configuration, failing fast when a critical
// dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	docs, err := store.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	var (
		urls   search.URLStore
		pgURLs *postgres.URLStore
	)
	if cfg.DB.DSN != "" {
		pgURLs, err = postgres.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect url store: %w", err)
		}
		urls = pgURLs
		logger.Info("frontier persistence enabled")
	} else {
		urls = frontier.NewMemoryURLStore()
		logger.Warn("no db.dsn configured, frontier state will not survive restarts")
	}

	schedule := fetch.NewSchedule(cfg.Crawler.MinDelay(), nil)
	fr := frontier.New(urls, schedule, nil, logger, frontier.Config{
		MaxDepth:    cfg.Crawler.MaxDepth,
		MaxAttempts: cfg.Crawler.MaxAttempts,
		MinRevisit:  cfg.Crawler.MinRevisit(),
	})
	if err := fr.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore frontier: %w", err)
	}

	var robots fetch.RobotsPolicy = fetch.AllowAll{}
	if cfg.Crawler.RespectRobots {
		robots = fetch.NewRobotsCache(cfg.Crawler.UserAgent, cfg.Crawler.RobotsTTL(), logger)
	}
	fetcher := fetch.NewHTTPFetcher(fetch.FetcherConfig{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.Crawler.FetchTimeout(),
		MaxBodySize: cfg.Crawler.MaxBodyBytes,
	})
	ix := indexer.New(docs, logger)
	pool := fetch.NewPool(fr, fetcher, parser.New(), ix, robots, schedule, cfg.Crawler.Workers, logger)

	tracker := trend.New(trend.Config{
		HalfLife:   cfg.Trend.HalfLife(),
		Retention:  cfg.Trend.Retention(),
		BufferSize: cfg.Trend.BufferSize,
	}, logger)
	engine := query.New(docs, tracker, logger)
	server := api.NewServer(engine, tracker, fr, docs, logger)

	return &App{
		Cfg:      cfg,
		Logger:   logger,
		Docs:     docs,
		Frontier: fr,
		Pool:     pool,
		Tracker:  tracker,
		Engine:   engine,
		Server:   server,
		urlStore: pgURLs,
	}, nil
}

// SeedFrontier enqueues the configured seed URLs at depth zero.
func (a *App) SeedFrontier(ctx context.Context) error {
	for _, seed := range a.Cfg.Crawler.Seeds {
		if err := a.Frontier.Enqueue(ctx, seed, 0); err != nil {
			return fmt.Errorf("enqueue seed %q: %w", seed, err)
		}
	}
	return nil
}

// Close shuts down the services the App owns.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	if err := a.Docs.Close(); err != nil {
		a.Logger.Warn("close document store", zap.Error(err))
	}
	if a.urlStore != nil {
		a.urlStore.Close()
	}
	_ = a.Logger.Sync()
}
