package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/knowvault/linkcycle/internal/links"
)

// JobStore provides an in-memory scrape job store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]links.ScrapeJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]links.ScrapeJob)}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job links.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus advances a job's lifecycle. Completed and failed jobs
// are terminal: further updates are rejected.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status links.JobStatus,
	result *links.ScrapeResult,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return links.ErrNotFound
	}
	if isTerminal(job.Status) {
		return errors.New("job is terminal")
	}
	job.Status = status
	job.Error = errText
	if result != nil {
		job.Result = result
	}
	now := time.Now().UTC()
	if status == links.JobStatusProcessing && job.StartedAt == nil {
		job.StartedAt = pointerTime(now)
	}
	if isTerminal(status) {
		job.EndedAt = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (links.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return links.ScrapeJob{}, links.ErrNotFound
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status links.JobStatus) bool {
	switch status {
	case links.JobStatusCompleted, links.JobStatusFailed:
		return true
	default:
		return false
	}
}
