package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()

	job := links.ScrapeJob{
		ID:        "job-1",
		TargetURL: "https://example.com/docs/x",
		Kind:      links.ContentTypeDocumentation,
		Status:    links.JobStatusPending,
	}
	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "duplicate create must fail")

	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", links.JobStatusProcessing, nil, ""))
	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, links.JobStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)

	result := &links.ScrapeResult{Title: "Docs X", URL: job.TargetURL, WordCount: 400, ReadingTime: 2}
	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", links.JobStatusCompleted, result, ""))
	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, links.JobStatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	require.Equal(t, "Docs X", got.Result.Title)

	// Completed jobs are immutable.
	require.Error(t, store.UpdateJobStatus(ctx, "job-1", links.JobStatusFailed, nil, "late"))
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()

	_, err := store.GetJob(ctx, "nope")
	require.ErrorIs(t, err, links.ErrNotFound)
	require.ErrorIs(t, store.UpdateJobStatus(ctx, "nope", links.JobStatusProcessing, nil, ""), links.ErrNotFound)
}
