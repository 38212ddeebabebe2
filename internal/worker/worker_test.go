package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/feedback"
	"github.com/knowvault/linkcycle/internal/links"
	memqueue "github.com/knowvault/linkcycle/internal/queue/memory"
	memstore "github.com/knowvault/linkcycle/internal/storage/memory"
)

type fakeScraper struct {
	mu     sync.Mutex
	result *links.ScrapeResult
	err    error
	calls  int
}

func (s *fakeScraper) Scrape(ctx context.Context, item links.QueueItem) (*links.ScrapeResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

type fakeFeedback struct {
	linkID  string
	jobID   string
	outcome feedback.Outcome
	calls   int
}

func (f *fakeFeedback) Apply(ctx context.Context, linkID, jobID string, outcome feedback.Outcome) error {
	f.calls++
	f.linkID = linkID
	f.jobID = jobID
	f.outcome = outcome
	return nil
}

type fakePublisher struct {
	topic   string
	payload any
	calls   int
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	p.calls++
	p.topic = topic
	p.payload = payload
	return "msg-1", p.err
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("digest-%d", len(data)), nil
}

type fakeIngestor struct {
	calls int
	err   error
}

func (i *fakeIngestor) IngestDocument(ctx context.Context, result links.ScrapeResult) error {
	i.calls++
	return i.err
}

type fakeVault struct {
	calls int
	err   error
}

func (v *fakeVault) WriteDocument(ctx context.Context, result links.ScrapeResult) error {
	v.calls++
	return v.err
}

type tickingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func seedJob(t *testing.T, jobs links.JobStore, id, url, linkID string) links.QueueItem {
	t.Helper()
	opts := links.ScrapeOptions{ExtractLinks: true, LinkID: linkID}
	require.NoError(t, jobs.CreateJob(context.Background(), links.ScrapeJob{
		ID:        id,
		TargetURL: url,
		Kind:      links.ContentTypeDocumentation,
		Status:    links.JobStatusPending,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}))
	return links.QueueItem{JobID: id, TargetURL: url, Kind: links.ContentTypeDocumentation, Options: opts, Attempt: 1}
}

func TestProcessCompletesJobAndAppliesFeedback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := memstore.NewJobStore()
	blobs := memstore.NewBlobStore()
	fb := &fakeFeedback{}
	pub := &fakePublisher{}
	ingestor := &fakeIngestor{}
	vault := &fakeVault{}
	scraper := &fakeScraper{result: &links.ScrapeResult{
		Title:     "Docs",
		Content:   "# Docs\n\nbody",
		URL:       "https://example.com/docs",
		Links:     []string{"https://example.com/docs/install"},
		WordCount: 120,
	}}

	w := New(1, memqueue.NewQueue(1), jobs, scraper, fb, Hooks{
		Publisher: pub,
		Topic:     "scrape-events",
		Hasher:    fakeHasher{},
		Blobs:     blobs,
		Ingestor:  ingestor,
		Vault:     vault,
	}, &tickingClock{now: time.Unix(1_700_000_000, 0).UTC(), step: time.Second}, zap.NewNop())

	item := seedJob(t, jobs, "job-1", "https://example.com/docs", "link-1")
	w.Process(ctx, item)

	job, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, links.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Equal(t, "Docs", job.Result.Title)
	require.NotEmpty(t, job.Result.Metadata.SnapshotURI)

	require.Equal(t, 1, fb.calls)
	require.Equal(t, "link-1", fb.linkID)
	require.Equal(t, "job-1", fb.jobID)
	require.True(t, fb.outcome.Success)
	require.Equal(t, time.Second, fb.outcome.Duration)

	require.Equal(t, 1, pub.calls)
	require.Equal(t, "scrape-events", pub.topic)
	event, ok := pub.payload.(CompletionEvent)
	require.True(t, ok)
	require.Equal(t, "completed", event.Status)
	require.Equal(t, 120, event.WordCount)

	require.Equal(t, 1, ingestor.calls)
	require.Equal(t, 1, vault.calls)
}

func TestProcessFailedScrapeMarksJobAndFeedsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := memstore.NewJobStore()
	fb := &fakeFeedback{}
	scraper := &fakeScraper{err: errors.New("navigation failed after 3 attempts: net::ERR_TIMED_OUT")}

	w := New(1, memqueue.NewQueue(1), jobs, scraper, fb, Hooks{},
		&tickingClock{now: time.Now().UTC(), step: time.Second}, zap.NewNop())

	item := seedJob(t, jobs, "job-1", "https://example.com/docs", "link-1")
	w.Process(ctx, item)

	job, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, links.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "navigation failed")

	require.Equal(t, 1, fb.calls)
	require.False(t, fb.outcome.Success)
	require.Contains(t, fb.outcome.Error, "navigation failed")
}

func TestProcessSkipsDuplicateDeliveryOfTerminalJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := memstore.NewJobStore()
	fb := &fakeFeedback{}
	scraper := &fakeScraper{result: &links.ScrapeResult{Title: "Docs"}}

	w := New(1, memqueue.NewQueue(1), jobs, scraper, fb, Hooks{},
		&tickingClock{now: time.Now().UTC(), step: time.Second}, zap.NewNop())

	item := seedJob(t, jobs, "job-1", "https://example.com/docs", "link-1")
	w.Process(ctx, item)
	w.Process(ctx, item)

	require.Equal(t, 1, scraper.calls, "terminal job is not scraped again")
	require.Equal(t, 1, fb.calls)
}

func TestProcessHookFailuresDoNotFailJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := memstore.NewJobStore()
	fb := &fakeFeedback{}
	scraper := &fakeScraper{result: &links.ScrapeResult{Title: "Docs", Content: "body"}}

	w := New(1, memqueue.NewQueue(1), jobs, scraper, fb, Hooks{
		Publisher: &fakePublisher{err: errors.New("broker down")},
		Topic:     "scrape-events",
		Ingestor:  &fakeIngestor{err: errors.New("ingest down")},
		Vault:     &fakeVault{err: errors.New("vault down")},
	}, &tickingClock{now: time.Now().UTC(), step: time.Second}, zap.NewNop())

	item := seedJob(t, jobs, "job-1", "https://example.com/docs", "link-1")
	w.Process(ctx, item)

	job, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, links.JobStatusCompleted, job.Status)
}

type countingDiscoverer struct {
	calls int
}

func (d *countingDiscoverer) Discover(ctx context.Context, sourceURL string, candidateURLs []string, pageContext string) ([]links.LinkRecord, error) {
	d.calls++
	return nil, nil
}

func TestProcessAdHocJobRunsDirectDiscovery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := memstore.NewJobStore()
	fb := &fakeFeedback{}
	disc := &countingDiscoverer{}
	scraper := &fakeScraper{result: &links.ScrapeResult{
		Title: "Docs",
		URL:   "https://example.com/docs",
		Links: []string{"https://example.com/docs/install"},
	}}

	w := New(1, memqueue.NewQueue(1), jobs, scraper, fb, Hooks{Discoverer: disc},
		&tickingClock{now: time.Now().UTC(), step: time.Second}, zap.NewNop())

	item := seedJob(t, jobs, "job-1", "https://example.com/docs", "")
	w.Process(ctx, item)

	require.Zero(t, fb.calls, "no owning link, no feedback")
	require.Equal(t, 1, disc.calls)
}

func TestPoolDrainsQueue(t *testing.T) {
	t.Parallel()

	jobs := memstore.NewJobStore()
	q := memqueue.NewQueue(8)
	fb := &fakeFeedback{}
	scraper := &fakeScraper{result: &links.ScrapeResult{Title: "Docs"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 1; i <= 4; i++ {
		item := seedJob(t, jobs, fmt.Sprintf("job-%d", i), "https://example.com/docs", "")
		require.NoError(t, q.Enqueue(ctx, item))
	}

	pool := NewPool(3, q, jobs, scraper, fb, Hooks{},
		&tickingClock{now: time.Now().UTC(), step: time.Second}, zap.NewNop())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		for i := 1; i <= 4; i++ {
			job, err := jobs.GetJob(context.Background(), fmt.Sprintf("job-%d", i))
			if err != nil || job.Status != links.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
}
