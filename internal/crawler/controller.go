package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/metrics"
)

// ControllerConfig holds the settings for a crawl session. It is decoupled
// from viper so the controller can be constructed directly in tests.
type ControllerConfig struct {
	PolitenessDelay time.Duration
	ArchivePrefix   string
}

// Controller owns the frontier and fetcher and runs the crawl loop to
// completion or limit, persisting each page. One Controller instance
// drives exactly one run.
type Controller struct {
	fetcher Fetcher
	pages   PageStore
	blobs   BlobStore
	clock   Clock
	pause   pauseController
	cfg     ControllerConfig
	logger  *zap.Logger
}

// NewController constructs a Controller. blobs may be nil, in which case
// raw HTML is not archived.
func NewController(
	fetcher Fetcher,
	pages PageStore,
	blobs BlobStore,
	clock Clock,
	cfg ControllerConfig,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher: fetcher,
		pages:   pages,
		blobs:   blobs,
		clock:   clock,
		pause:   &timerPauseController{},
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes the crawl loop for params. Per-URL failures are logged and
// skipped; only fetcher-fatal errors or context cancellation abort the run.
// The visited set converges on every scope-eligible URL reachable from the
// seed, subject to the page limit.
func (c *Controller) Run(ctx context.Context, params RunParams) (RunStats, error) {
	policy, err := NewScopePolicy(params.TargetURL, params.PathPrefix)
	if err != nil {
		return RunStats{}, fmt.Errorf("build scope policy: %w", err)
	}
	frontier := NewFrontier(params.TargetURL)
	stats := RunStats{}

	c.logger.Info("starting crawl",
		zap.String("target_url", params.TargetURL),
		zap.Bool("single_page", params.SinglePage),
		zap.Int("max_pages", params.MaxPages),
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("crawl aborted: %w", err)
		}
		if params.MaxPages > 0 && stats.PagesScraped >= params.MaxPages {
			c.logger.Info("page limit reached", zap.Int("max_pages", params.MaxPages))
			break
		}
		url, ok := frontier.Pop()
		if !ok {
			break
		}
		if !frontier.MarkVisited(url) {
			continue
		}

		outcome, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			// The fetcher itself is broken; surface as a run failure.
			return stats, fmt.Errorf("fetcher failed on %s: %w", url, err)
		}
		if outcome.Err != nil {
			stats.PagesFailed++
			metrics.PageFetches.WithLabelValues("error").Inc()
			c.logger.Warn("page fetch failed",
				zap.String("url", url),
				zap.Error(outcome.Err),
			)
			continue
		}

		if err := c.persistPage(ctx, params, outcome); err != nil {
			stats.PagesFailed++
			c.logger.Error("persist page failed", zap.String("url", url), zap.Error(err))
			continue
		}
		stats.PagesScraped++
		metrics.PageFetches.WithLabelValues("ok").Inc()

		discovered := 0
		if !params.SinglePage {
			discovered = c.enqueueLinks(frontier, policy, outcome)
		}
		c.logger.Info("scraped page",
			zap.String("url", url),
			zap.Int("new_links", discovered),
			zap.Int("frontier", frontier.Len()),
		)

		c.pause.Pause(ctx, c.cfg.PolitenessDelay)
	}

	c.logger.Info("crawl finished",
		zap.Int("pages_scraped", stats.PagesScraped),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("urls_visited", frontier.VisitedCount()),
	)
	return stats, nil
}

func (c *Controller) persistPage(ctx context.Context, params RunParams, outcome FetchOutcome) error {
	now := c.clock.Now()
	page := Page{
		URL:        outcome.URL,
		Title:      outcome.Title,
		Text:       outcome.Text,
		HTML:       outcome.HTML,
		IsHomepage: outcome.URL == params.TargetURL,
		ScrapedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.pages.UpsertPage(ctx, page); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	c.archiveHTML(ctx, outcome)
	return nil
}

// archiveHTML writes the raw rendered HTML to the blob store when one is
// configured. Archive failures never fail the page.
func (c *Controller) archiveHTML(ctx context.Context, outcome FetchOutcome) {
	if c.blobs == nil {
		return
	}
	path := fmt.Sprintf("%s/%s.html", c.cfg.ArchivePrefix, sanitizeBlobName(outcome.URL))
	uri, err := c.blobs.PutObject(ctx, path, "text/html; charset=utf-8", []byte(outcome.HTML))
	if err != nil {
		c.logger.Warn("archive html failed", zap.String("url", outcome.URL), zap.Error(err))
		return
	}
	c.logger.Debug("archived html", zap.String("url", outcome.URL), zap.String("blob_uri", uri))
}

func (c *Controller) enqueueLinks(frontier *Frontier, policy ScopePolicy, outcome FetchOutcome) int {
	added := 0
	for _, href := range outcome.Links {
		canonical, reason := policy.Resolve(href, outcome.URL)
		if reason != RejectNone {
			continue
		}
		if frontier.Add(canonical) {
			added++
		}
	}
	return added
}
