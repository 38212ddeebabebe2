package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/links"
)

// DefaultConcurrency is the worker slot count when unset.
const DefaultConcurrency = 3

// Pool runs a fixed number of worker slots over one queue.
type Pool struct {
	workers []*Worker
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewPool builds size worker slots sharing the same collaborators.
func NewPool(
	size int,
	queue links.Queue,
	jobs links.JobStore,
	scraper Scraper,
	fb Feedback,
	hooks Hooks,
	clock links.Clock,
	logger *zap.Logger,
) *Pool {
	if size <= 0 {
		size = DefaultConcurrency
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = New(i+1, queue, jobs, scraper, fb, hooks, clock, logger)
	}
	return &Pool{workers: workers, logger: logger}
}

// Start launches every slot. Slots exit when the context ends.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.logger.Error("worker exited", zap.Error(err))
			}
		}()
	}
	p.logger.Info("worker pool started", zap.Int("size", len(p.workers)))
}

// Wait blocks until every slot has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}
