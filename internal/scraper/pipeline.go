package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/links"
)

// PipelineConfig controls navigation and wait behavior.
type PipelineConfig struct {
	// NavTimeout bounds a single navigation attempt.
	NavTimeout time.Duration
	// NavAttempts is the number of navigation tries before the job fails.
	NavAttempts int
	// NavRetryDelay is the fixed wait between navigation attempts.
	NavRetryDelay time.Duration
	// SelectorTimeout bounds the optional selector wait when the job
	// does not supply its own.
	SelectorTimeout time.Duration
}

// Defaults applied when a field is unset.
const (
	DefaultNavTimeout      = 30 * time.Second
	DefaultNavAttempts     = 3
	DefaultNavRetryDelay   = 2 * time.Second
	DefaultSelectorTimeout = 10 * time.Second
)

// Pipeline runs the extraction stages for one job at a time. Navigation
// failure fails the job; every extraction sub-task degrades to an empty
// value instead.
type Pipeline struct {
	browser Browser
	logger  *zap.Logger
	cfg     PipelineConfig

	// sleep is swapped out in tests to avoid real settle delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline constructs a Pipeline over the given browser.
func NewPipeline(browser Browser, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = DefaultNavTimeout
	}
	if cfg.NavAttempts <= 0 {
		cfg.NavAttempts = DefaultNavAttempts
	}
	if cfg.NavRetryDelay <= 0 {
		cfg.NavRetryDelay = DefaultNavRetryDelay
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = DefaultSelectorTimeout
	}
	return &Pipeline{
		browser: browser,
		logger:  logger,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
}

// Scrape executes the full pipeline for one queue item.
func (p *Pipeline) Scrape(ctx context.Context, item links.QueueItem) (*links.ScrapeResult, error) {
	page, err := p.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire page: %w", err)
	}
	defer page.Close()

	if err := p.navigate(ctx, page, item.TargetURL); err != nil {
		return nil, err
	}

	if sel := item.Options.WaitForSelector; sel != "" {
		timeout := item.Options.MaxWaitTime
		if timeout <= 0 {
			timeout = p.cfg.SelectorTimeout
		}
		if err := page.WaitVisible(ctx, sel, timeout); err != nil {
			p.logger.Debug("selector wait timed out, continuing",
				zap.String("url", item.TargetURL),
				zap.String("selector", sel),
				zap.Error(err),
			)
		}
	}

	if err := p.sleep(ctx, links.SettleDelay(item.Kind)); err != nil {
		return nil, fmt.Errorf("settle wait: %w", err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}

	return p.extract(item, html)
}

// navigate retries with a fixed delay and returns the last error once
// attempts are exhausted.
func (p *Pipeline) navigate(ctx context.Context, page Page, targetURL string) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.NavAttempts; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
		err := page.Navigate(navCtx, targetURL)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("navigation attempt failed",
			zap.String("url", targetURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < p.cfg.NavAttempts {
			if err := p.sleep(ctx, p.cfg.NavRetryDelay); err != nil {
				return fmt.Errorf("navigation retry wait: %w", err)
			}
		}
	}
	return fmt.Errorf("navigation failed after %d attempts: %w", p.cfg.NavAttempts, lastErr)
}

// extract parses the rendered DOM once and runs the sub-tasks
// concurrently. A panicking sub-task leaves its field at the degraded
// default.
func (p *Pipeline) extract(item links.QueueItem, html string) (*links.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	base, err := url.Parse(item.TargetURL)
	if err != nil {
		base = nil
	}

	result := &links.ScrapeResult{
		Title: "Untitled",
		URL:   item.TargetURL,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	run := func(name string, task func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warn("extraction sub-task panicked",
						zap.String("url", item.TargetURL),
						zap.String("task", name),
						zap.Any("panic", r),
					)
				}
			}()
			task()
		}()
	}

	run("title", func() {
		title := extractTitle(doc)
		mu.Lock()
		result.Title = title
		mu.Unlock()
	})
	run("content", func() {
		content := extractContent(doc, item.TargetURL)
		text := normalizeWhitespace(cleanedBody(doc).Text())
		words := countWords(text)
		mu.Lock()
		result.Content = content
		result.WordCount = words
		result.ReadingTime = links.ReadingTime(words)
		mu.Unlock()
	})
	run("metadata", func() {
		meta := extractMetadata(doc)
		mu.Lock()
		result.Metadata = meta
		mu.Unlock()
	})
	if item.Options.ExtractImages {
		run("images", func() {
			images := extractImages(doc, base)
			mu.Lock()
			result.Images = images
			mu.Unlock()
		})
	}
	if item.Options.ExtractLinks {
		run("links", func() {
			linkSet := extractLinks(doc, base)
			mu.Lock()
			result.Links = linkSet
			mu.Unlock()
		})
	}
	run("videos", func() {
		videos := extractVideos(doc, base)
		mu.Lock()
		result.VideoLinks = videos
		mu.Unlock()
	})

	wg.Wait()
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
