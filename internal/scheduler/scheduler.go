// Package scheduler triggers periodic crawl jobs when a scrape frequency
// is configured.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/worker"
)

// submitter is the Runner's admission surface.
type submitter interface {
	Submit(ctx context.Context, params crawler.RunParams) (string, error)
}

// Scheduler submits a standard crawl job on a fixed interval. An active
// run at tick time is skipped, not queued.
type Scheduler struct {
	runner   submitter
	interval time.Duration
	params   crawler.RunParams
	logger   *zap.Logger
}

// New builds a scheduler. interval must be positive.
func New(runner submitter, interval time.Duration, params crawler.RunParams, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, interval: interval, params: params, logger: logger}
}

// Run ticks until ctx is canceled. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.String("target_url", s.params.TargetURL),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	jobID, err := s.runner.Submit(ctx, s.params)
	if errors.Is(err, worker.ErrRunActive) {
		s.logger.Info("skipping scheduled crawl, run already active")
		return
	}
	if err != nil {
		s.logger.Error("scheduled crawl submission failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl submitted", zap.String("job_id", jobID))
}
