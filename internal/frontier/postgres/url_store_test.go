package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/intellsearch/intell/internal/search"
)

func TestURLStore_Upsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithDB(mock)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := search.URLRecord{
		NormalizedURL: "http://example.com/a",
		Host:          "example.com",
		Depth:         1,
		State:         search.StateDone,
		Outcome:       search.OutcomeIndexed,
		DiscoveredAt:  now,
		LastCrawledAt: now.Add(time.Minute),
		Attempts:      1,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO url_records")).
		WithArgs(
			rec.NormalizedURL,
			rec.Host,
			rec.Depth,
			string(rec.State),
			string(rec.Outcome),
			rec.DiscoveredAt,
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			rec.Attempts,
			rec.LastError,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestURLStore_Load(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithDB(mock)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	crawled := now.Add(time.Minute)
	rows := pgxmock.NewRows([]string{
		"normalized_url", "host", "depth", "state", "outcome",
		"discovered_at", "last_crawled_at", "next_attempt_at", "attempts", "last_error",
	}).
		AddRow("http://example.com", "example.com", 0, "done", "indexed", now, &crawled, (*time.Time)(nil), 1, "").
		AddRow("http://example.com/a", "example.com", 1, "pending", "", now, (*time.Time)(nil), (*time.Time)(nil), 0, "")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT normalized_url, host, depth")).
		WillReturnRows(rows)

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, search.StateDone, records[0].State)
	require.Equal(t, crawled, records[0].LastCrawledAt)
	require.True(t, records[1].LastCrawledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
