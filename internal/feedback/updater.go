// Package feedback applies scrape outcomes back to the link registry and
// closes the loop into discovery.
package feedback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/links"
)

// Discoverer grows the registry from links extracted out of a page.
type Discoverer interface {
	Discover(ctx context.Context, sourceURL string, candidateURLs []string, pageContext string) ([]links.LinkRecord, error)
}

// Outcome is one finished job as seen by its owning link.
type Outcome struct {
	Success  bool
	Error    string
	Result   *links.ScrapeResult
	Duration time.Duration
}

// Updater applies outcomes to the registry, appends the audit trail, and
// re-runs discovery over extracted links on success.
type Updater struct {
	registry   links.LinkStore
	history    links.HistoryStore
	discoverer Discoverer
	idGen      links.IDGenerator
	clock      links.Clock
	logger     *zap.Logger
}

// New constructs an Updater. The discoverer may be nil to disable
// recursive discovery.
func New(
	registry links.LinkStore,
	history links.HistoryStore,
	discoverer Discoverer,
	idGen links.IDGenerator,
	clock links.Clock,
	logger *zap.Logger,
) *Updater {
	return &Updater{
		registry:   registry,
		history:    history,
		discoverer: discoverer,
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
	}
}

// Apply records one job outcome against its owning link. Queue delivery
// is at-least-once, so a link/job pair already present in the history is
// treated as a duplicate and skipped without touching the counters.
func (u *Updater) Apply(ctx context.Context, linkID, jobID string, outcome Outcome) error {
	dup, err := u.history.HasJob(ctx, linkID, jobID)
	if err != nil {
		return fmt.Errorf("check job history: %w", err)
	}
	if dup {
		u.logger.Debug("duplicate job delivery ignored",
			zap.String("link_id", linkID),
			zap.String("job_id", jobID),
		)
		return nil
	}

	now := u.clock.Now()
	rec, err := u.registry.RecordOutcome(ctx, linkID, outcome.Success, outcome.Error, now)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if rec.Status == links.LinkStatusError {
		u.logger.Warn("link moved to error after repeated failures",
			zap.String("link_id", linkID),
			zap.String("url", rec.URL),
			zap.Int("error_count", rec.ErrorCount),
		)
	}

	entryID, err := u.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate history id: %w", err)
	}
	status := links.JobStatusCompleted
	if !outcome.Success {
		status = links.JobStatusFailed
	}
	entry := links.ScrapeHistoryEntry{
		ID:        entryID,
		LinkID:    linkID,
		JobID:     jobID,
		Status:    status,
		Error:     outcome.Error,
		ScrapedAt: now,
		Duration:  outcome.Duration,
	}
	if err := u.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if outcome.Success && outcome.Result != nil {
		u.rediscover(ctx, rec.URL, outcome.Result)
	}
	return nil
}

// rediscover feeds the result's extracted links back through discovery.
// Failures are logged and swallowed; they never fail the outcome.
func (u *Updater) rediscover(ctx context.Context, sourceURL string, result *links.ScrapeResult) {
	if u.discoverer == nil || len(result.Links) == 0 {
		return
	}
	recs, err := u.discoverer.Discover(ctx, sourceURL, result.Links, discoveryContext(result))
	if err != nil {
		u.logger.Warn("recursive discovery failed",
			zap.String("source_url", sourceURL),
			zap.Error(err),
		)
		return
	}
	if len(recs) > 0 {
		u.logger.Info("recursive discovery grew the registry",
			zap.String("source_url", sourceURL),
			zap.Int("links", len(recs)),
		)
	}
}

// discoveryContext builds the text snippet the classifier scores
// keywords against.
func discoveryContext(result *links.ScrapeResult) string {
	const maxContext = 500
	text := result.Title + " " + result.Metadata.Description + " " + result.Content
	if len(text) > maxContext {
		text = text[:maxContext]
	}
	return text
}
