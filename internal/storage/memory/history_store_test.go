package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

func TestHistoryStoreAppendAndHasJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewHistoryStore()

	ok, err := store.HasJob(ctx, "link-1", "job-1")
	require.NoError(t, err)
	require.False(t, ok)

	entry := links.ScrapeHistoryEntry{
		ID:        "h-1",
		LinkID:    "link-1",
		JobID:     "job-1",
		Status:    links.JobStatusCompleted,
		ScrapedAt: time.Unix(100, 0).UTC(),
		Duration:  3 * time.Second,
	}
	require.NoError(t, store.Append(ctx, entry))

	ok, err = store.HasJob(ctx, "link-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.HasJob(ctx, "link-1", "job-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHistoryStoreListByLinkNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewHistoryStore()

	for i, jobID := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, store.Append(ctx, links.ScrapeHistoryEntry{
			LinkID:    "link-1",
			JobID:     jobID,
			Status:    links.JobStatusCompleted,
			ScrapedAt: time.Unix(int64(100+i), 0).UTC(),
		}))
	}

	entries, err := store.ListByLink(ctx, "link-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "job-3", entries[0].JobID)
	require.Equal(t, "job-2", entries[1].JobID)
}
