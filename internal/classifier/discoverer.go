package classifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/links"
)

// Config controls discovery behavior.
type Config struct {
	// MinConfidence discards candidates scoring below it.
	MinConfidence float64
	// MaxLinks bounds how many candidates a single batch may upsert.
	MaxLinks int
}

// DefaultMinConfidence is the threshold applied when a caller does not
// supply one.
const DefaultMinConfidence = 0.4

// DefaultMaxLinks bounds recursive discovery per batch.
const DefaultMaxLinks = 20

// Discoverer turns raw extracted links plus page context into scored
// candidates and upserts them into the registry. The registry's URL key
// doubles as the visited-URL index, so rediscovery is a lookup, not a
// re-traversal.
type Discoverer struct {
	registry links.LinkStore
	idGen    links.IDGenerator
	clock    links.Clock
	logger   *zap.Logger
	cfg      Config
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(
	registry links.LinkStore,
	idGen links.IDGenerator,
	clock links.Clock,
	cfg Config,
	logger *zap.Logger,
) *Discoverer {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = DefaultMaxLinks
	}
	return &Discoverer{
		registry: registry,
		idGen:    idGen,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// Discover classifies each candidate URL, discards low-confidence ones,
// and upserts the rest. Per-candidate failures are logged and skipped;
// they never abort the batch. Returns the records that were upserted.
func (d *Discoverer) Discover(
	ctx context.Context,
	sourceURL string,
	candidateURLs []string,
	pageContext string,
) ([]links.LinkRecord, error) {
	var out []links.LinkRecord
	for _, raw := range candidateURLs {
		if len(out) >= d.cfg.MaxLinks {
			break
		}
		candidate := BoostFromContext(Classify(raw), pageContext)
		candidate.Source = sourceURL
		if candidate.Confidence < d.cfg.MinConfidence {
			d.logger.Debug("candidate below confidence threshold",
				zap.String("url", raw),
				zap.Float64("confidence", candidate.Confidence),
				zap.String("context", candidate.Context),
			)
			continue
		}
		rec, err := d.upsertCandidate(ctx, candidate)
		if err != nil {
			d.logger.Warn("candidate upsert failed",
				zap.String("url", raw),
				zap.Error(err),
			)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *Discoverer) upsertCandidate(ctx context.Context, c links.Candidate) (links.LinkRecord, error) {
	id, err := d.idGen.NewID()
	if err != nil {
		return links.LinkRecord{}, fmt.Errorf("generate link id: %w", err)
	}
	now := d.clock.Now()
	interval := links.DefaultInterval(c.ContentType)
	next := now.Add(interval)

	rec := links.LinkRecord{
		ID:             id,
		URL:            c.URL,
		Domain:         domainOf(c.URL),
		Title:          c.Title,
		ContentType:    c.ContentType,
		Status:         links.LinkStatusActive,
		Priority:       c.Priority(),
		ScrapeInterval: interval,
		NextScrape:     &next,
		DiscoveredFrom: c.Source,
		Metadata: map[string]any{
			"confidence":    c.Confidence,
			"context":       c.Context,
			"discovered_at": now.Format(time.RFC3339),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, created, err := d.registry.Upsert(ctx, rec)
	if err != nil {
		return links.LinkRecord{}, fmt.Errorf("upsert link: %w", err)
	}
	if created {
		d.logger.Info("link discovered",
			zap.String("url", stored.URL),
			zap.String("content_type", string(stored.ContentType)),
			zap.Int("priority", stored.Priority),
		)
	}
	return stored, nil
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
