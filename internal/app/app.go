// Package app composes the service from configuration: stores, queue,
// scheduler, worker pool and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/api"
	"github.com/knowvault/linkcycle/internal/callback"
	"github.com/knowvault/linkcycle/internal/classifier"
	"github.com/knowvault/linkcycle/internal/clock/system"
	"github.com/knowvault/linkcycle/internal/config"
	"github.com/knowvault/linkcycle/internal/feedback"
	"github.com/knowvault/linkcycle/internal/hash/sha256"
	"github.com/knowvault/linkcycle/internal/id/uuid"
	"github.com/knowvault/linkcycle/internal/links"
	"github.com/knowvault/linkcycle/internal/metrics"
	mempub "github.com/knowvault/linkcycle/internal/publisher/memory"
	pubpub "github.com/knowvault/linkcycle/internal/publisher/pubsub"
	memqueue "github.com/knowvault/linkcycle/internal/queue/memory"
	psqueue "github.com/knowvault/linkcycle/internal/queue/pubsub"
	"github.com/knowvault/linkcycle/internal/scheduler"
	"github.com/knowvault/linkcycle/internal/scraper"
	"github.com/knowvault/linkcycle/internal/storage/gcs"
	"github.com/knowvault/linkcycle/internal/storage/local"
	memstore "github.com/knowvault/linkcycle/internal/storage/memory"
	"github.com/knowvault/linkcycle/internal/storage/postgres"
	"github.com/knowvault/linkcycle/internal/worker"
)

// App holds the long-lived services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registry links.LinkStore
	jobs     links.JobStore
	history  links.HistoryStore
	queue    links.Queue

	sched   *scheduler.Scheduler
	pool    *worker.Pool
	browser scraper.Browser
	server  *http.Server

	closers []func()
}

// New builds every service the configuration asks for. It fails fast
// when a critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		return nil, err
	}

	idGen := uuid.New()
	clk := system.New()

	discoverer := classifier.NewDiscoverer(a.registry, idGen, clk, classifier.Config{
		MinConfidence: cfg.Discovery.MinConfidence,
		MaxLinks:      cfg.Discovery.MaxLinks,
	}, logger)

	updater := feedback.New(a.registry, a.history, discoverer, idGen, clk, logger)

	if cfg.Scheduler.Enabled {
		a.sched = scheduler.New(a.registry, a.jobs, a.queue, idGen, clk, scheduler.Config{
			SweepInterval: cfg.SweepInterval(),
			BatchSize:     cfg.Scheduler.BatchSize,
			DispatchDelay: cfg.DispatchDelay(),
		}, logger)
	}

	if cfg.Worker.Enabled {
		hooks, err := a.buildHooks(ctx, discoverer)
		if err != nil {
			return nil, err
		}
		browser, err := scraper.NewChromeBrowser(scraper.ChromeConfig{
			MaxParallel: cfg.Scraper.MaxParallel,
			UserAgent:   cfg.Scraper.UserAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		a.browser = browser
		pipeline := scraper.NewPipeline(browser, scraper.PipelineConfig{
			NavTimeout:      time.Duration(cfg.Scraper.NavTimeoutSeconds) * time.Second,
			NavAttempts:     cfg.Scraper.NavAttempts,
			NavRetryDelay:   time.Duration(cfg.Scraper.NavRetryDelaySeconds) * time.Second,
			SelectorTimeout: time.Duration(cfg.Scraper.SelectorTimeoutSeconds) * time.Second,
		}, logger)
		a.pool = worker.NewPool(cfg.Worker.Concurrency, a.queue, a.jobs, pipeline, updater, hooks, clk, logger)
	}

	srv := api.NewServer(a.registry, a.jobs, a.history, a.queue, a.sweeper(), discoverer,
		idGen, clk, cfg, logger)
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.cfg.Registry.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		a.closers = append(a.closers, pool.Close)

		registry, err := postgres.NewLinkStore(pool)
		if err != nil {
			return err
		}
		jobs, err := postgres.NewJobStore(pool)
		if err != nil {
			return err
		}
		history, err := postgres.NewHistoryStore(pool)
		if err != nil {
			return err
		}
		a.registry, a.jobs, a.history = registry, jobs, history
		a.logger.Info("using postgres stores")
	default:
		a.registry = memstore.NewLinkStore()
		a.jobs = memstore.NewJobStore()
		a.history = memstore.NewHistoryStore()
		a.logger.Info("using in-memory stores")
	}
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	switch a.cfg.Queue.Backend {
	case "pubsub":
		q, err := psqueue.NewQueue(ctx, a.cfg.Queue.ProjectID, a.cfg.Queue.Topic,
			a.cfg.Queue.Subscription, a.logger)
		if err != nil {
			return err
		}
		a.queue = q
		a.closers = append(a.closers, func() {
			if err := q.Close(); err != nil {
				a.logger.Warn("queue close failed", zap.Error(err))
			}
		})
		a.logger.Info("using pubsub queue", zap.String("topic", a.cfg.Queue.Topic))
	default:
		q := memqueue.NewQueue(a.cfg.Queue.Capacity)
		a.queue = q
		a.closers = append(a.closers, q.Close)
		a.logger.Info("using in-memory queue", zap.Int("capacity", a.cfg.Queue.Capacity))
	}
	return nil
}

func (a *App) buildHooks(ctx context.Context, discoverer *classifier.Discoverer) (worker.Hooks, error) {
	hooks := worker.Hooks{Discoverer: discoverer}

	switch a.cfg.Archive.Backend {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return worker.Hooks{}, fmt.Errorf("init local archive: %w", err)
		}
		hooks.Blobs = blobs
		hooks.Hasher = sha256.New()
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return worker.Hooks{}, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return worker.Hooks{}, err
		}
		hooks.Blobs = blobs
		hooks.Hasher = sha256.New()
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
	case "memory":
		hooks.Blobs = memstore.NewBlobStore()
		hooks.Hasher = sha256.New()
	}

	if a.cfg.Publish.Enabled {
		switch a.cfg.Publish.Backend {
		case "memory":
			hooks.Publisher = mempub.New()
			hooks.Topic = a.cfg.Publish.Topic
		default:
			client, err := pubsub.NewClient(ctx, a.cfg.Publish.ProjectID)
			if err != nil {
				return worker.Hooks{}, fmt.Errorf("init pubsub publisher: %w", err)
			}
			pub, err := pubpub.New(client)
			if err != nil {
				return worker.Hooks{}, err
			}
			hooks.Publisher = pub
			hooks.Topic = a.cfg.Publish.Topic
			a.closers = append(a.closers, func() {
				if err := client.Close(); err != nil {
					a.logger.Warn("pubsub client close failed", zap.Error(err))
				}
			})
		}
	}

	if a.cfg.Ingest.KnowledgeEndpoint != "" {
		ingestor, err := callback.NewKnowledgeClient(callback.Config{
			Endpoint: a.cfg.Ingest.KnowledgeEndpoint,
			APIKey:   a.cfg.Ingest.APIKey,
			Timeout:  time.Duration(a.cfg.Ingest.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return worker.Hooks{}, err
		}
		hooks.Ingestor = ingestor
	}
	if a.cfg.Ingest.VaultEndpoint != "" {
		vault, err := callback.NewVaultClient(callback.Config{
			Endpoint: a.cfg.Ingest.VaultEndpoint,
			APIKey:   a.cfg.Ingest.APIKey,
			Timeout:  time.Duration(a.cfg.Ingest.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return worker.Hooks{}, err
		}
		hooks.Vault = vault
	}
	return hooks, nil
}

func (a *App) sweeper() api.Sweeper {
	if a.sched == nil {
		return nil
	}
	return a.sched
}

// Start launches the scheduler, worker pool and HTTP server. It blocks
// until the HTTP server stops.
func (a *App) Start(ctx context.Context) error {
	if a.sched != nil {
		if err := a.sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if a.pool != nil {
		a.pool.Start(ctx)
	}

	a.logger.Info("http server listening", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, scheduler and workers, then releases
// every external client.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.pool != nil {
		a.pool.Wait()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	for _, close := range a.closers {
		close()
	}
	a.logger.Info("shutdown complete")
}
