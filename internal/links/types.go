// Package links defines core types shared across subsystems.
package links

import (
	"math"
	"time"
)

// ContentType is the coarse classification assigned to a discovered URL.
// It drives the default scrape interval and the pipeline settle delay.
type ContentType string

// Content type values persisted on link records.
const (
	ContentTypeBlog          ContentType = "blog"
	ContentTypeNews          ContentType = "news"
	ContentTypeDocumentation ContentType = "documentation"
	ContentTypeAPI           ContentType = "api"
	ContentTypeTutorial      ContentType = "tutorial"
	ContentTypeWiki          ContentType = "wiki"
	ContentTypeForum         ContentType = "forum"
	ContentTypeGitHub        ContentType = "github"
	ContentTypeStackOverflow ContentType = "stackoverflow"
	ContentTypeUnknown       ContentType = "unknown"
)

// LinkStatus is the lifecycle state of a link record.
type LinkStatus string

// Link status values. The engine only ever moves links between active and
// error; inactive and blocked are administrative states set externally.
const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusInactive LinkStatus = "inactive"
	LinkStatusError    LinkStatus = "error"
	LinkStatusBlocked  LinkStatus = "blocked"
)

// ErrorThreshold is the number of consecutive failures after which a link
// transitions to error and is excluded from normal scheduling.
const ErrorThreshold = 3

// MaxPriority caps link priority; priorities derive from discovery
// confidence as floor(confidence*10).
const MaxPriority = 10

// LinkRecord is the persistent scheduling/classification state for one URL.
// URL is the natural key: the registry never holds two records for the
// same URL.
type LinkRecord struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Domain         string         `json:"domain"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	ContentType    ContentType    `json:"content_type"`
	Status         LinkStatus     `json:"status"`
	Priority       int            `json:"priority"`
	ScrapeInterval time.Duration  `json:"scrape_interval"`
	LastScraped    *time.Time     `json:"last_scraped,omitempty"`
	NextScrape     *time.Time     `json:"next_scrape,omitempty"`
	SuccessCount   int            `json:"success_count"`
	ErrorCount     int            `json:"error_count"`
	LastError      string         `json:"last_error,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ScrapeJob is one dispatched, trackable unit of scrape work. Jobs are
// immutable once completed or failed.
type ScrapeJob struct {
	ID        string        `json:"id"`
	TargetURL string        `json:"target_url"`
	Kind      ContentType   `json:"kind"`
	Status    JobStatus     `json:"status"`
	Options   ScrapeOptions `json:"options"`
	Result    *ScrapeResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// ScrapeOptions captures per-job extraction knobs requested by the producer.
type ScrapeOptions struct {
	ExtractImages   bool          `json:"extract_images"`
	ExtractLinks    bool          `json:"extract_links"`
	WaitForSelector string        `json:"wait_for_selector,omitempty"`
	MaxWaitTime     time.Duration `json:"max_wait_time,omitempty"`
	// LinkID ties a scheduled job back to its owning registry record.
	// Empty for ad-hoc jobs submitted through the API.
	LinkID string `json:"link_id,omitempty"`
}

// QueueItem is the message pushed by producers and consumed by workers.
type QueueItem struct {
	JobID     string        `json:"job_id"`
	TargetURL string        `json:"target_url"`
	Kind      ContentType   `json:"kind"`
	Options   ScrapeOptions `json:"options"`
	Attempt   int           `json:"attempt"`
	Submitted int64         `json:"submitted"`
}

// PageMetadata holds standard, social-preview and article tags extracted
// from a page.
type PageMetadata struct {
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Language    string            `json:"language,omitempty"`
	Canonical   string            `json:"canonical,omitempty"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	Twitter     map[string]string `json:"twitter,omitempty"`
	Article     map[string]string `json:"article,omitempty"`
	SnapshotURI string            `json:"snapshot_uri,omitempty"`
}

// ScrapeResult is the structured extraction payload produced per job.
type ScrapeResult struct {
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	URL         string       `json:"url"`
	Metadata    PageMetadata `json:"metadata"`
	Images      []string     `json:"images"`
	Links       []string     `json:"links"`
	VideoLinks  []string     `json:"video_links"`
	WordCount   int          `json:"word_count"`
	ReadingTime int          `json:"reading_time"`
}

// ScrapeHistoryEntry is the append-only audit record for one attempt
// against a link. Entries are never mutated.
type ScrapeHistoryEntry struct {
	ID        string        `json:"id"`
	LinkID    string        `json:"link_id"`
	JobID     string        `json:"job_id"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	ScrapedAt time.Time     `json:"scraped_at"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Candidate is a scored, typed link produced by the classifier before it
// is upserted into the registry.
type Candidate struct {
	URL         string
	Title       string
	ContentType ContentType
	Confidence  float64
	Context     string
	Source      string
}

// Priority derives the 0-10 registry priority from the candidate confidence.
func (c Candidate) Priority() int {
	p := int(math.Floor(c.Confidence * 10))
	if p > MaxPriority {
		return MaxPriority
	}
	if p < 0 {
		return 0
	}
	return p
}

// ReadingTime computes reading minutes from a word count at 200 wpm,
// rounded up.
func ReadingTime(wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(wordCount) / 200.0))
}
