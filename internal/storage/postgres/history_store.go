package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/knowvault/linkcycle/internal/links"
)

// HistoryStore persists the append-only scrape audit trail.
type HistoryStore struct {
	pool db
}

// NewHistoryStore constructs a store over an existing pool.
func NewHistoryStore(pool db) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HistoryStore{pool: pool}, nil
}

// Append inserts one audit entry. The (link_id, job_id) unique
// constraint backs the duplicate-delivery check in HasJob.
func (s *HistoryStore) Append(ctx context.Context, entry links.ScrapeHistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO scrape_history (id, link_id, job_id, status, error, scraped_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID,
		entry.LinkID,
		entry.JobID,
		string(entry.Status),
		entry.Error,
		entry.ScrapedAt,
		entry.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// HasJob reports whether an entry exists for the link/job pair.
func (s *HistoryStore) HasJob(ctx context.Context, linkID, jobID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM scrape_history WHERE link_id = $1 AND job_id = $2)`,
		linkID, jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return exists, nil
}

// ListByLink returns the newest entries for a link, most recent first.
func (s *HistoryStore) ListByLink(ctx context.Context, linkID string, limit int) ([]links.ScrapeHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, link_id, job_id, status, error, scraped_at, duration_ms
FROM scrape_history
WHERE link_id = $1
ORDER BY scraped_at DESC
LIMIT $2`, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []links.ScrapeHistoryEntry
	for rows.Next() {
		var (
			entry      links.ScrapeHistoryEntry
			status     string
			durationMS int64
		)
		err := rows.Scan(
			&entry.ID,
			&entry.LinkID,
			&entry.JobID,
			&status,
			&entry.Error,
			&entry.ScrapedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Status = links.JobStatus(status)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
