// Package worker consumes the job queue and drives the scrape pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/feedback"
	"github.com/knowvault/linkcycle/internal/links"
	"github.com/knowvault/linkcycle/internal/metrics"
)

// Scraper runs the extraction pipeline for one queue item.
type Scraper interface {
	Scrape(ctx context.Context, item links.QueueItem) (*links.ScrapeResult, error)
}

// Feedback applies a finished job to its owning link.
type Feedback interface {
	Apply(ctx context.Context, linkID, jobID string, outcome feedback.Outcome) error
}

// CompletionEvent is published after a job reaches a terminal state.
type CompletionEvent struct {
	JobID      string `json:"job_id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	WordCount  int    `json:"word_count,omitempty"`
	Error      string `json:"error,omitempty"`
	FinishedAt int64  `json:"finished_at"`
}

// Hooks are the best-effort collaborators invoked after the job's own
// outcome is settled. Any of them may be nil.
type Hooks struct {
	Publisher links.Publisher
	Topic     string
	Hasher    links.Hasher
	Blobs     links.BlobStore
	Ingestor  links.KnowledgeIngestor
	Vault     links.VaultWriter
	// Discoverer handles ad-hoc jobs with no owning link; scheduled jobs
	// rediscover through the feedback updater instead.
	Discoverer feedback.Discoverer
}

// Worker is one execution slot over the queue.
type Worker struct {
	id       int
	queue    links.Queue
	jobs     links.JobStore
	scraper  Scraper
	feedback Feedback
	hooks    Hooks
	clock    links.Clock
	logger   *zap.Logger
}

// New constructs a worker slot.
func New(
	id int,
	queue links.Queue,
	jobs links.JobStore,
	scraper Scraper,
	fb Feedback,
	hooks Hooks,
	clock links.Clock,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		id:       id,
		queue:    queue,
		jobs:     jobs,
		scraper:  scraper,
		feedback: fb,
		hooks:    hooks,
		clock:    clock,
		logger:   logger.With(zap.Int("worker", id)),
	}
}

// Run consumes the queue until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		w.Process(ctx, item)
	}
}

// Process runs one job end to end. The job's own success or failure is
// decided solely by the extraction pipeline; every post-completion hook
// is best-effort.
func (w *Worker) Process(ctx context.Context, item links.QueueItem) {
	logger := w.logger.With(
		zap.String("job_id", item.JobID),
		zap.String("url", item.TargetURL),
	)

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, links.JobStatusProcessing, nil, ""); err != nil {
		// A terminal job means this is a duplicate delivery.
		logger.Warn("skipping job, claim failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	result, err := w.scraper.Scrape(ctx, item)
	duration := w.clock.Now().Sub(start)
	metrics.ObserveScrape(string(item.Kind), duration)

	if err != nil {
		w.finishFailed(ctx, logger, item, err, duration)
		return
	}
	w.finishCompleted(ctx, logger, item, result, duration)
}

func (w *Worker) finishFailed(ctx context.Context, logger *zap.Logger, item links.QueueItem, scrapeErr error, duration time.Duration) {
	errText := scrapeErr.Error()
	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, links.JobStatusFailed, nil, errText); err != nil {
		logger.Error("failed job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(links.JobStatusFailed))
	logger.Warn("job failed", zap.String("error", errText))

	w.publishEvent(ctx, logger, CompletionEvent{
		JobID:      item.JobID,
		URL:        item.TargetURL,
		Status:     string(links.JobStatusFailed),
		Error:      errText,
		FinishedAt: w.clock.Now().Unix(),
	})

	if item.Options.LinkID != "" {
		err := w.feedback.Apply(ctx, item.Options.LinkID, item.JobID, feedback.Outcome{
			Success:  false,
			Error:    errText,
			Duration: duration,
		})
		if err != nil {
			logger.Error("feedback update failed", zap.Error(err))
		}
	}
}

func (w *Worker) finishCompleted(ctx context.Context, logger *zap.Logger, item links.QueueItem, result *links.ScrapeResult, duration time.Duration) {
	w.archiveSnapshot(ctx, logger, result)

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, links.JobStatusCompleted, result, ""); err != nil {
		logger.Error("completed job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(links.JobStatusCompleted))
	logger.Info("job completed",
		zap.Int("word_count", result.WordCount),
		zap.Int("links", len(result.Links)),
		zap.Duration("duration", duration),
	)

	w.publishEvent(ctx, logger, CompletionEvent{
		JobID:      item.JobID,
		URL:        item.TargetURL,
		Status:     string(links.JobStatusCompleted),
		WordCount:  result.WordCount,
		FinishedAt: w.clock.Now().Unix(),
	})

	if item.Options.LinkID != "" {
		err := w.feedback.Apply(ctx, item.Options.LinkID, item.JobID, feedback.Outcome{
			Success:  true,
			Result:   result,
			Duration: duration,
		})
		if err != nil {
			logger.Error("feedback update failed", zap.Error(err))
		}
	} else if w.hooks.Discoverer != nil && len(result.Links) > 0 {
		if _, err := w.hooks.Discoverer.Discover(ctx, result.URL, result.Links, result.Title); err != nil {
			logger.Warn("discovery failed", zap.Error(err))
		}
	}

	w.ingest(ctx, logger, result)
}

// archiveSnapshot stores the extracted markdown in the blob store and
// stamps the result with the snapshot URI. Best-effort.
func (w *Worker) archiveSnapshot(ctx context.Context, logger *zap.Logger, result *links.ScrapeResult) {
	if w.hooks.Blobs == nil || w.hooks.Hasher == nil || result.Content == "" {
		return
	}
	digest, err := w.hooks.Hasher.Hash([]byte(result.Content))
	if err != nil {
		logger.Warn("snapshot hash failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("snapshots/%s.md", digest)
	uri, err := w.hooks.Blobs.PutObject(ctx, path, "text/markdown", []byte(result.Content))
	if err != nil {
		logger.Warn("snapshot archive failed", zap.Error(err))
		return
	}
	result.Metadata.SnapshotURI = uri
}

func (w *Worker) publishEvent(ctx context.Context, logger *zap.Logger, event CompletionEvent) {
	if w.hooks.Publisher == nil {
		return
	}
	if _, err := w.hooks.Publisher.Publish(ctx, w.hooks.Topic, event); err != nil {
		logger.Warn("completion event publish failed", zap.Error(err))
	}
}

// ingest hands the result to the downstream collaborators. Their
// failures never fail the job.
func (w *Worker) ingest(ctx context.Context, logger *zap.Logger, result *links.ScrapeResult) {
	if w.hooks.Ingestor != nil {
		if err := w.hooks.Ingestor.IngestDocument(ctx, *result); err != nil {
			logger.Warn("knowledge ingestion failed", zap.Error(err))
		}
	}
	if w.hooks.Vault != nil {
		if err := w.hooks.Vault.WriteDocument(ctx, *result); err != nil {
			logger.Warn("vault write failed", zap.Error(err))
		}
	}
}
