package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knowvault/linkcycle/internal/links"
)

// JobStore persists scrape jobs in Postgres.
type JobStore struct {
	pool db
}

// NewJobStore constructs a store over an existing pool.
func NewJobStore(pool db) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// CreateJob inserts a new job row. Duplicate IDs are rejected by the
// primary key.
func (s *JobStore) CreateJob(ctx context.Context, job links.ScrapeJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO scrape_jobs (id, target_url, kind, status, options, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		job.ID,
		job.TargetURL,
		string(job.Kind),
		string(job.Status),
		opts,
		job.Error,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus advances the job lifecycle. Terminal jobs are
// immutable; attempting to update one returns an error so duplicate
// queue deliveries can be detected by the caller.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status links.JobStatus, result *links.ScrapeResult, errText string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs SET
	status = $2,
	result = COALESCE($3, result),
	error = $4,
	started_at = CASE WHEN $2 = 'processing' THEN now() ELSE started_at END,
	ended_at = CASE WHEN $2 IN ('completed','failed') THEN now() ELSE ended_at END
WHERE id = $1 AND status NOT IN ('completed','failed')`,
		jobID, string(status), resultJSON, errText)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("job is terminal")
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (links.ScrapeJob, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, target_url, kind, status, options, result, error, created_at, started_at, ended_at
FROM scrape_jobs WHERE id = $1`, jobID)

	var (
		job        links.ScrapeJob
		kind       string
		status     string
		opts       []byte
		resultJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.TargetURL,
		&kind,
		&status,
		&opts,
		&resultJSON,
		&job.Error,
		&job.CreatedAt,
		&job.StartedAt,
		&job.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return links.ScrapeJob{}, links.ErrNotFound
	}
	if err != nil {
		return links.ScrapeJob{}, fmt.Errorf("get job: %w", err)
	}
	job.Kind = links.ContentType(kind)
	job.Status = links.JobStatus(status)
	if err := json.Unmarshal(opts, &job.Options); err != nil {
		return links.ScrapeJob{}, fmt.Errorf("unmarshal options: %w", err)
	}
	if len(resultJSON) > 0 {
		job.Result = &links.ScrapeResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return links.ScrapeJob{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return job, nil
}
