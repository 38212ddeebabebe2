package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	job := links.ScrapeJob{
		ID:        "job-1",
		TargetURL: "https://example.com/docs",
		Kind:      links.ContentTypeDocumentation,
		Status:    links.JobStatusPending,
		Options:   links.ScrapeOptions{ExtractLinks: true, LinkID: "link-1"},
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(job.ID, job.TargetURL, "documentation", "pending",
			pgxmock.AnyArg(), "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusRejectsTerminalJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec("UPDATE scrape_jobs SET").
		WithArgs("job-1", "processing", []byte(nil), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("FROM scrape_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "target_url", "kind", "status", "options", "result",
			"error", "created_at", "started_at", "ended_at",
		}).AddRow("job-1", "https://example.com/docs", "documentation",
			"completed", []byte(`{}`), []byte(nil), "", now, &now, &now))

	err = store.UpdateJobStatus(context.Background(), "job-1", links.JobStatusProcessing, nil, "")
	require.EqualError(t, err, "job is terminal")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("FROM scrape_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, links.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
