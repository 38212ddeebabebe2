// Package scraper drives the per-job headless extraction pipeline.
package scraper

import (
	"context"
	"time"
)

// Browser hands out page contexts. Implementations own the underlying
// browser process lifecycle.
type Browser interface {
	// NewPage acquires a fresh page context. The caller must Close it on
	// every exit path.
	NewPage(ctx context.Context) (Page, error)
	Close()
}

// Page is the capability surface the pipeline needs from one browser
// tab. Keeping it narrow lets the pipeline run against a fake in tests.
type Page interface {
	// Navigate loads the URL and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector is visible or the timeout
	// elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// HTML returns the rendered outer HTML of the document.
	HTML(ctx context.Context) (string, error)
	Close()
}
