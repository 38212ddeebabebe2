// Package api exposes the HTTP interface for the link lifecycle service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/config"
	"github.com/knowvault/linkcycle/internal/links"
	"github.com/knowvault/linkcycle/internal/metrics"
	"github.com/knowvault/linkcycle/internal/scheduler"
)

// Sweeper triggers one scheduler sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Discoverer scores and upserts candidate links.
type Discoverer interface {
	Discover(ctx context.Context, sourceURL string, candidateURLs []string, pageContext string) ([]links.LinkRecord, error)
}

// Server wires HTTP handlers to the registry, job store and queue.
type Server struct {
	router     chi.Router
	registry   links.LinkStore
	jobs       links.JobStore
	history    links.HistoryStore
	queue      links.Queue
	sweeper    Sweeper
	discoverer Discoverer
	idGen      links.IDGenerator
	clock      links.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The sweeper
// may be nil when the scheduler is disabled.
func NewServer(
	registry links.LinkStore,
	jobs links.JobStore,
	history links.HistoryStore,
	queue links.Queue,
	sweeper Sweeper,
	discoverer Discoverer,
	idGen links.IDGenerator,
	clock links.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		registry:   registry,
		jobs:       jobs,
		history:    history,
		queue:      queue,
		sweeper:    sweeper,
		discoverer: discoverer,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(timeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrapes", s.submitScrape)
		r.Get("/jobs/{job_id}", s.getJob)
		r.Route("/links", func(r chi.Router) {
			r.Get("/", s.getLinkByURL)
			r.Get("/{link_id}", s.getLink)
			r.Get("/{link_id}/history", s.getLinkHistory)
		})
		r.Post("/discoveries", s.submitDiscovery)
		r.Post("/scheduler/sweep", s.triggerSweep)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL             string `json:"url"`
	Kind            string `json:"kind"`
	ExtractImages   *bool  `json:"extract_images"`
	ExtractLinks    *bool  `json:"extract_links"`
	WaitForSelector string `json:"wait_for_selector"`
	MaxWaitSeconds  int    `json:"max_wait_seconds"`
	LinkID          string `json:"link_id"`
}

// submitScrape creates a pending job and pushes it onto the queue.
func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	kind := links.ContentTypeUnknown
	if req.Kind != "" {
		kind = links.ContentType(req.Kind)
	}
	opts := links.ScrapeOptions{
		ExtractImages:   boolOrDefault(req.ExtractImages, true),
		ExtractLinks:    boolOrDefault(req.ExtractLinks, true),
		WaitForSelector: req.WaitForSelector,
		LinkID:          req.LinkID,
	}
	if req.MaxWaitSeconds > 0 {
		opts.MaxWaitTime = time.Duration(req.MaxWaitSeconds) * time.Second
	}

	jobID, err := s.enqueueJob(r.Context(), req.URL, kind, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) enqueueJob(ctx context.Context, url string, kind links.ContentType, opts links.ScrapeOptions) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := links.ScrapeJob{
		ID:        jobID,
		TargetURL: url,
		Kind:      kind,
		Status:    links.JobStatusPending,
		Options:   opts,
		CreatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := links.QueueItem{
		JobID:     jobID,
		TargetURL: url,
		Kind:      kind,
		Options:   opts,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getLinkByURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	rec, err := s.registry.GetByURL(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "link_id")
	rec, err := s.registry.Get(r.Context(), linkID)
	if err != nil {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getLinkHistory(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "link_id")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.history.ListByLink(r.Context(), linkID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type discoveryRequest struct {
	SourceURL string   `json:"source_url"`
	URLs      []string `json:"urls"`
	Context   string   `json:"context"`
}

// submitDiscovery runs the classifier over caller-supplied candidates.
func (s *Server) submitDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls are required")
		return
	}
	recs, err := s.discoverer.Discover(r.Context(), req.SourceURL, req.URLs, req.Context)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discovered": len(recs),
		"links":      recs,
	})
}

// triggerSweep runs one sweep outside the recurring schedule.
func (s *Server) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is disabled")
		return
	}
	dispatched, err := s.sweeper.Sweep(r.Context())
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		writeError(w, http.StatusConflict, "sweep already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"dispatched": dispatched})
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
