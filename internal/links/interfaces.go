package links

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// LinkStore is the registry of link records, the single arbiter of
// scheduling state. Implementations must serialize concurrent updates to
// the same record.
type LinkStore interface {
	// Upsert inserts a newly discovered candidate or merges it into an
	// existing record for the same URL. On merge it refreshes title and
	// content type and raises priority to max(existing, candidate); it
	// never lowers priority and never creates a duplicate for the URL.
	// Returns the stored record and whether it was newly created.
	Upsert(ctx context.Context, rec LinkRecord) (LinkRecord, bool, error)

	// Get fetches a record by ID.
	Get(ctx context.Context, id string) (LinkRecord, error)

	// GetByURL fetches a record by its natural key.
	GetByURL(ctx context.Context, url string) (LinkRecord, error)

	// SelectDue returns up to limit active records whose nextScrape is
	// unset or not after now, ordered by priority descending then
	// nextScrape ascending (null due times first).
	SelectDue(ctx context.Context, now time.Time, limit int) ([]LinkRecord, error)

	// MarkScheduled reserves a link for the current interval by setting
	// lastScraped=now and nextScrape=now+interval before the job runs.
	MarkScheduled(ctx context.Context, id string, lastScraped, nextScrape time.Time) error

	// RecordOutcome applies a scrape outcome: on success it increments
	// successCount, clears lastError and forces status active; on failure
	// it increments errorCount, stores errText, and moves the record to
	// error once errorCount reaches ErrorThreshold.
	RecordOutcome(ctx context.Context, id string, success bool, errText string, at time.Time) (LinkRecord, error)
}

// JobStore persists scrape job state.
type JobStore interface {
	CreateJob(ctx context.Context, job ScrapeJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, result *ScrapeResult, errText string) error
	GetJob(ctx context.Context, jobID string) (ScrapeJob, error)
}

// HistoryStore persists the append-only scrape audit trail.
type HistoryStore interface {
	Append(ctx context.Context, entry ScrapeHistoryEntry) error
	// HasJob reports whether an entry for the given link/job pair already
	// exists. The feedback updater uses it to keep counters stable under
	// duplicate queue delivery.
	HasJob(ctx context.Context, linkID, jobID string) (bool, error)
	ListByLink(ctx context.Context, linkID string, limit int) ([]ScrapeHistoryEntry, error)
}

// Queue provides enqueue/dequeue semantics for scrape work. Delivery is
// at-least-once; consumers must tolerate duplicates.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// KnowledgeIngestor hands a successful scrape result to the downstream
// knowledge store. Best-effort: callers swallow errors.
type KnowledgeIngestor interface {
	IngestDocument(ctx context.Context, result ScrapeResult) error
}

// VaultWriter appends a successful scrape result to the markdown vault
// collaborator. Best-effort: callers swallow errors.
type VaultWriter interface {
	WriteDocument(ctx context.Context, result ScrapeResult) error
}

// Hasher computes digests for snapshot naming/deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and link IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
