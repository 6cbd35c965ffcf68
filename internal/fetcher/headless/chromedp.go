// Package headless implements the page fetcher on a headless Chrome
// browser driven through chromedp, so JavaScript-rendered sites produce
// the same DOM a visitor would see.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/extract"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay gives client-side rendering a moment to finish after
	// the body is ready.
	SettleDelay time.Duration
	// RequestsPerSecond throttles navigations. 0 disables the limiter.
	RequestsPerSecond float64
}

// Fetcher implements crawler.Fetcher using chromedp. One browser process
// is shared across fetches; each Fetch runs in its own tab.
type Fetcher struct {
	cfg         Config
	limiter     *rate.Limiter
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New launches the exec allocator for a headless Chrome. The browser
// itself starts lazily on the first fetch.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close tears down the browser process.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders url in a fresh tab and extracts its content. Navigation
// and render failures are per-URL outcomes; only cancellation of the
// caller's context or a dead allocator abort the crawl.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchOutcome, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return crawler.FetchOutcome{}, fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	if err := f.allocator.Err(); err != nil {
		return crawler.FetchOutcome{}, fmt.Errorf("browser allocator closed: %w", err)
	}

	html, err := f.render(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchOutcome{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		return crawler.FetchOutcome{URL: url, Err: err}, nil
	}

	doc, err := extract.Parse(html)
	if err != nil {
		return crawler.FetchOutcome{URL: url, Err: err}, nil
	}
	return crawler.FetchOutcome{
		URL:   url,
		Title: doc.Title,
		Text:  doc.Text,
		HTML:  html,
		Links: doc.Links,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Propagate the caller's cancellation into the tab.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var html string
	actions := []chromedp.Action{
		f.userAgentAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("navigation timed out after %s: %w", f.cfg.NavigationTimeout, err)
		}
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (f *Fetcher) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}
