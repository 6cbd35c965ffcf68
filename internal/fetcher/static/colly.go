// Package static implements the page fetcher with plain HTTP via Colly.
// It is the right choice for server-rendered sites where a browser is
// wasted weight, and it is what the crawl CLI uses by default.
package static

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/extract"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using a Colly collector per fetch.
type Fetcher struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a static fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := colly.NewCollector(colly.Async(false))
	// Scope is enforced by the crawl policy alone, and the headless
	// fetcher has no robots handling; keep the two modes consistent.
	base.IgnoreRobotsTxt = true
	return &Fetcher{cfg: cfg, base: base, logger: logger}
}

// Fetch executes a single GET and extracts the page content. HTTP errors
// are per-URL outcomes; only context cancellation aborts the run.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchOutcome, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return crawler.FetchOutcome{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			fetchErr = err
		}
	}
	if fetchErr != nil {
		return crawler.FetchOutcome{URL: url, Err: fmt.Errorf("visit %s: %w", url, fetchErr)}, nil
	}

	html := string(body)
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
