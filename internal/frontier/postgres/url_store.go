// Package postgres provides Postgres-backed persistence for the frontier.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intellsearch/intell/internal/search"
)

// db is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS url_records (
	normalized_url  TEXT PRIMARY KEY,
	host            TEXT NOT NULL,
	depth           INT NOT NULL,
	state           TEXT NOT NULL,
	outcome         TEXT NOT NULL DEFAULT '',
	discovered_at   TIMESTAMPTZ NOT NULL,
	last_crawled_at TIMESTAMPTZ,
	next_attempt_at TIMESTAMPTZ,
	attempts        INT NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS url_records_state_idx ON url_records (state);
`

// URLStore implements search.URLStore on Postgres.
type URLStore struct {
	pool db
}

// New connects a pool, verifies connectivity, and ensures the schema.
func New(ctx context.Context, dsn string) (*URLStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &URLStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing pool-compatible handle (used by tests).
func NewWithDB(pool db) *URLStore {
	return &URLStore{pool: pool}
}

func (s *URLStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Upsert writes a URL record keyed by normalized URL.
func (s *URLStore) Upsert(ctx context.Context, rec search.URLRecord) error {
	query := `
		INSERT INTO url_records
			(normalized_url, host, depth, state, outcome, discovered_at, last_crawled_at, next_attempt_at, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (normalized_url) DO UPDATE SET
			state = EXCLUDED.state,
			outcome = EXCLUDED.outcome,
			last_crawled_at = EXCLUDED.last_crawled_at,
			next_attempt_at = EXCLUDED.next_attempt_at,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error
	`
	_, err := s.pool.Exec(ctx, query,
		rec.NormalizedURL,
		rec.Host,
		rec.Depth,
		string(rec.State),
		string(rec.Outcome),
		rec.DiscoveredAt,
		nullableTime(rec.LastCrawledAt),
		nullableTime(rec.NextAttemptAt),
		rec.Attempts,
		rec.LastError,
	)
	if err != nil {
		return fmt.Errorf("upsert url record: %w", err)
	}
	return nil
}

// Load returns every persisted URL record.
func (s *URLStore) Load(ctx context.Context) ([]search.URLRecord, error) {
	query := `
		SELECT normalized_url, host, depth, state, outcome, discovered_at, last_crawled_at, next_attempt_at, attempts, last_error
		FROM url_records
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load url records: %w", err)
	}
	defer rows.Close()

	var records []search.URLRecord
	for rows.Next() {
		var (
			rec            search.URLRecord
			state, outcome string
			lastCrawled    *time.Time
			nextAttempt    *time.Time
		)
		if err := rows.Scan(
			&rec.NormalizedURL,
			&rec.Host,
			&rec.Depth,
			&state,
			&outcome,
			&rec.DiscoveredAt,
			&lastCrawled,
			&nextAttempt,
			&rec.Attempts,
			&rec.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan url record: %w", err)
		}
		rec.State = search.URLState(state)
		rec.Outcome = search.Outcome(outcome)
		if lastCrawled != nil {
			rec.LastCrawledAt = *lastCrawled
		}
		if nextAttempt != nil {
			rec.NextAttemptAt = *nextAttempt
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate url records: %w", err)
	}
	return records, nil
}

// Ping verifies database connectivity.
func (s *URLStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *URLStore) Close() {
	s.pool.Close()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
