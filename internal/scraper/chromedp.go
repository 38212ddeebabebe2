package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeConfig controls the shared headless Chrome process.
type ChromeConfig struct {
	MaxParallel int
	UserAgent   string
}

// ChromeBrowser implements Browser on top of chromedp. One exec
// allocator is shared; each page is an isolated tab context.
type ChromeBrowser struct {
	cfg         ChromeConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromeBrowser starts a headless Chrome allocator.
func NewChromeBrowser(cfg ChromeConfig) (*ChromeBrowser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeBrowser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// NewPage acquires a parallelism slot and opens a fresh tab.
func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	return &chromePage{
		browser: b,
		ctx:     tabCtx,
		cancel:  tabCancel,
	}, nil
}

// Close tears down the allocator and every tab spawned from it.
func (b *ChromeBrowser) Close() {
	b.allocCancel()
}

func (b *ChromeBrowser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("page slot wait canceled: %w", ctx.Err())
	}
}

func (b *ChromeBrowser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

type chromePage struct {
	browser *ChromeBrowser
	ctx     context.Context
	cancel  context.CancelFunc
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := joinContexts(p.ctx, ctx)
	defer cancel()

	actions := []chromedp.Action{
		p.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := joinContexts(p.ctx, ctx)
	defer cancel()
	runCtx, timeoutCancel := context.WithTimeout(runCtx, timeout)
	defer timeoutCancel()

	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := joinContexts(p.ctx, ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (p *chromePage) Close() {
	p.cancel()
	p.browser.release()
}

func (p *chromePage) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if p.browser.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.browser.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// joinContexts keeps the tab context as the chromedp carrier while
// honoring the caller's cancellation and deadline.
func joinContexts(tab, caller context.Context) (context.Context, context.CancelFunc) {
	joined, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(caller, cancel)
	return joined, func() {
		stop()
		cancel()
	}
}
