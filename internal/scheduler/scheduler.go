// Package scheduler runs the recurring sweep that selects due links from
// the registry and dispatches scrape jobs onto the queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/knowvault/linkcycle/internal/links"
	"github.com/knowvault/linkcycle/internal/metrics"
)

// ErrSweepInProgress indicates a sweep was skipped because another sweep
// is still running in this process.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Config controls sweep cadence and batch shape.
type Config struct {
	// SweepInterval is the period between recurring sweeps.
	SweepInterval time.Duration
	// BatchSize caps how many due links one sweep may dispatch.
	BatchSize int
	// DispatchDelay spaces consecutive dispatches within a sweep to
	// throttle burst load on the scrapers.
	DispatchDelay time.Duration
}

// Defaults applied when a field is unset.
const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultBatchSize     = 20
	DefaultDispatchDelay = time.Second
)

// Scheduler is a singleton, recurring sweep over the link registry. The
// isRunning guard is cooperative and in-process only: running more than
// one replica duplicates dispatch, and preventing that is the hosting
// process's composition problem, not this component's.
type Scheduler struct {
	registry links.LinkStore
	jobs     links.JobStore
	queue    links.Queue
	idGen    links.IDGenerator
	clock    links.Clock
	logger   *zap.Logger
	cfg      Config

	cron    *cron.Cron
	limiter *rate.Limiter

	mu       sync.Mutex
	sweeping bool
	started  bool

	baseCtx context.Context
}

// New constructs a Scheduler. Call Start to begin sweeping.
func New(
	registry links.LinkStore,
	jobs links.JobStore,
	queue links.Queue,
	idGen links.IDGenerator,
	clock links.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DispatchDelay <= 0 {
		cfg.DispatchDelay = DefaultDispatchDelay
	}
	return &Scheduler{
		registry: registry,
		jobs:     jobs,
		queue:    queue,
		idGen:    idGen,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(),
		limiter:  rate.NewLimiter(rate.Every(cfg.DispatchDelay), 1),
	}
}

// Start registers the recurring sweep and runs one immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := s.cron.AddFunc(spec, s.runSweep); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	s.cron.Start()

	go s.runSweep()

	s.logger.Info("scheduler started",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return nil
}

// Stop halts the recurring sweep and waits for an in-flight one.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	dispatched, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Debug("sweep skipped, previous sweep still running")
	case err != nil:
		s.logger.Error("sweep failed", zap.Error(err))
	default:
		if dispatched > 0 {
			s.logger.Info("sweep completed", zap.Int("dispatched", dispatched))
		}
	}
}

// Sweep selects due links and dispatches a scrape job for each. Per-link
// failures are logged and do not abort the sweep for the remaining links.
// Returns the number of links dispatched.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if !s.beginSweep() {
		return 0, ErrSweepInProgress
	}
	defer s.endSweep()

	start := s.clock.Now()
	metrics.ObserveSweepStarted()

	due, err := s.registry.SelectDue(ctx, start, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("select due links: %w", err)
	}

	dispatched := 0
	for _, rec := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return dispatched, fmt.Errorf("dispatch throttle: %w", err)
		}
		if err := s.dispatch(ctx, rec); err != nil {
			s.logger.Warn("link dispatch failed",
				zap.String("link_id", rec.ID),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
			continue
		}
		dispatched++
	}

	metrics.ObserveSweepFinished(dispatched, s.clock.Now().Sub(start))
	return dispatched, nil
}

// dispatch enqueues one scrape job and immediately reserves the link for
// its next interval. The reservation happens before the job completes so
// a slow worker cannot cause the same link to be scheduled twice within
// one interval.
func (s *Scheduler) dispatch(ctx context.Context, rec links.LinkRecord) error {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()

	job := links.ScrapeJob{
		ID:        jobID,
		TargetURL: rec.URL,
		Kind:      rec.ContentType,
		Status:    links.JobStatusPending,
		Options: links.ScrapeOptions{
			ExtractImages: true,
			ExtractLinks:  true,
			LinkID:        rec.ID,
		},
		CreatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	item := links.QueueItem{
		JobID:     jobID,
		TargetURL: rec.URL,
		Kind:      rec.ContentType,
		Options:   job.Options,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		if updErr := s.jobs.UpdateJobStatus(ctx, jobID, links.JobStatusFailed, nil, "enqueue failed"); updErr != nil {
			s.logger.Warn("orphaned job status update failed",
				zap.String("job_id", jobID), zap.Error(updErr))
		}
		return fmt.Errorf("enqueue job: %w", err)
	}

	next := now.Add(rec.ScrapeInterval)
	if err := s.registry.MarkScheduled(ctx, rec.ID, now, next); err != nil {
		return fmt.Errorf("reserve link: %w", err)
	}

	metrics.ObserveDispatch(string(rec.ContentType))
	s.logger.Debug("link dispatched",
		zap.String("job_id", jobID),
		zap.String("url", rec.URL),
		zap.Int("priority", rec.Priority),
		zap.Time("next_scrape", next),
	)
	return nil
}

func (s *Scheduler) beginSweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweeping {
		return false
	}
	s.sweeping = true
	return true
}

func (s *Scheduler) endSweep() {
	s.mu.Lock()
	s.sweeping = false
	s.mu.Unlock()
}
