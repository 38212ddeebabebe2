package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

var linkCols = []string{
	"id", "url", "domain", "title", "description", "content_type", "status",
	"priority", "scrape_interval_seconds", "last_scraped", "next_scrape",
	"success_count", "error_count", "last_error", "tags", "discovered_from",
	"metadata", "created_at", "updated_at",
}

func linkRow(id, url string, extra ...any) []any {
	now := time.Unix(1_700_000_000, 0).UTC()
	row := []any{
		id, url, "example.com", "Docs", "", "documentation", "active",
		8, int64(604800), nil, nil,
		0, 0, "", []byte(`[]`), "",
		[]byte(`{}`), now, now,
	}
	return append(row, extra...)
}

func TestUpsertReturnsCreatedFlag(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLinkStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	rec := links.LinkRecord{
		ID:             "link-1",
		URL:            "https://example.com/docs",
		Domain:         "example.com",
		Title:          "Docs",
		ContentType:    links.ContentTypeDocumentation,
		Status:         links.LinkStatusActive,
		Priority:       8,
		ScrapeInterval: 604800 * time.Second,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery("INSERT INTO links").
		WithArgs(
			rec.ID, rec.URL, rec.Domain, rec.Title, rec.Description,
			"documentation", "active", rec.Priority, int64(604800),
			rec.LastScraped, rec.NextScrape, rec.SuccessCount, rec.ErrorCount,
			rec.LastError, []byte(`[]`), rec.DiscoveredFrom, []byte(`{}`),
			rec.CreatedAt, rec.UpdatedAt,
		).
		WillReturnRows(pgxmock.NewRows(append(linkCols, "created")).
			AddRow(linkRow("link-1", "https://example.com/docs", true)...))

	stored, created, err := store.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "link-1", stored.ID)
	require.Equal(t, links.ContentTypeDocumentation, stored.ContentType)
	require.Equal(t, 604800*time.Second, stored.ScrapeInterval)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectDueQueriesActiveOrdered(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLinkStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery(`WHERE status = 'active' AND \(next_scrape IS NULL OR next_scrape <= \$1\)`).
		WithArgs(now, 20).
		WillReturnRows(pgxmock.NewRows(linkCols).
			AddRow(linkRow("link-1", "https://example.com/docs")...).
			AddRow(linkRow("link-2", "https://example.com/blog")...))

	due, err := store.SelectDue(context.Background(), now, 20)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "link-1", due[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScheduledNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLinkStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec("UPDATE links SET last_scraped").
		WithArgs("missing", now, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.MarkScheduled(context.Background(), "missing", now, now.Add(time.Hour))
	require.ErrorIs(t, err, links.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomePassesThreshold(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLinkStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery("UPDATE links SET").
		WithArgs("link-1", false, "navigation failed", links.ErrorThreshold, now).
		WillReturnRows(pgxmock.NewRows(linkCols).
			AddRow("link-1", "https://example.com/docs", "example.com", "Docs", "",
				"documentation", "error", 8, int64(604800), nil, nil,
				0, 3, "navigation failed", []byte(`[]`), "", []byte(`{}`), now, now))

	rec, err := store.RecordOutcome(context.Background(), "link-1", false, "navigation failed", now)
	require.NoError(t, err)
	require.Equal(t, links.LinkStatusError, rec.Status)
	require.Equal(t, 3, rec.ErrorCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
