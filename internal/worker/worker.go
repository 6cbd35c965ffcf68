// Package worker orchestrates crawl-and-index jobs: admission, lifecycle
// transitions, the crawl itself, the reindex, and the completion event.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/metrics"
)

// ErrRunActive is returned when a job is submitted while another one is
// still pending or running. Only one job runs at a time.
var ErrRunActive = errors.New("a crawl job is already active")

// crawlRunner is the crawl loop the Runner drives.
type crawlRunner interface {
	Run(ctx context.Context, params crawler.RunParams) (crawler.RunStats, error)
}

// reindexer rebuilds the vector index from the persisted pages.
type reindexer interface {
	ReindexAll(ctx context.Context) (int, error)
}

// Config tunes the Runner.
type Config struct {
	// JobTimeout is the wall-clock budget for one job, crawl plus
	// reindex. 0 disables the timeout.
	JobTimeout time.Duration
	// WipePages clears the page store before each crawl so deleted
	// pages do not linger.
	WipePages bool
	// EventTopic, when set, receives a JobEvent after each terminal
	// transition.
	EventTopic string
}

// JobEvent is the payload published when a job reaches a terminal state.
type JobEvent struct {
	JobID         string `json:"job_id"`
	TargetURL     string `json:"target_url"`
	Status        string `json:"status"`
	PagesScraped  int    `json:"pages_scraped"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// Runner owns single-run admission and the job lifecycle. Submitting
// while a run is in flight is refused, never queued.
type Runner struct {
	jobs      crawler.JobStore
	pages     crawler.PageStore
	crawl     crawlRunner
	pipeline  reindexer
	publisher crawler.Publisher
	ids       crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewRunner wires a Runner. publisher may be nil.
func NewRunner(
	jobs crawler.JobStore,
	pages crawler.PageStore,
	crawl crawlRunner,
	pipeline reindexer,
	publisher crawler.Publisher,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		jobs:      jobs,
		pages:     pages,
		crawl:     crawl,
		pipeline:  pipeline,
		publisher: publisher,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit admits and starts a job asynchronously, returning its ID. It
// returns ErrRunActive when another job is pending or running.
func (r *Runner) Submit(ctx context.Context, params crawler.RunParams) (string, error) {
	jobID, err := r.admit(ctx, params)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(jobID, params)
	}()
	return jobID, nil
}

// RunOnce admits and runs a job synchronously. The crawl CLI uses it.
func (r *Runner) RunOnce(ctx context.Context, params crawler.RunParams) (string, error) {
	jobID, err := r.admit(ctx, params)
	if err != nil {
		return "", err
	}
	r.execute(jobID, params)
	return jobID, nil
}

// Wait blocks until any in-flight job finishes.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Active reports whether a job is currently in flight.
func (r *Runner) Active() bool {
	return r.inFlight.Load()
}

func (r *Runner) admit(ctx context.Context, params crawler.RunParams) (string, error) {
	if params.TargetURL == "" {
		return "", fmt.Errorf("target url is required")
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		return "", ErrRunActive
	}
	// The store check catches jobs left behind by a previous process.
	if _, active, err := r.jobs.ActiveJob(ctx); err != nil {
		r.inFlight.Store(false)
		return "", fmt.Errorf("check active job: %w", err)
	} else if active {
		r.inFlight.Store(false)
		return "", ErrRunActive
	}

	jobID, err := r.ids.NewID()
	if err != nil {
		r.inFlight.Store(false)
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:        jobID,
		TargetURL: params.TargetURL,
		Status:    crawler.JobStatusPending,
	}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		r.inFlight.Store(false)
		return "", fmt.Errorf("create job: %w", err)
	}
	return jobID, nil
}

// execute runs one admitted job to a terminal state. It never returns an
// error: every failure path lands in the Failed status instead.
func (r *Runner) execute(jobID string, params crawler.RunParams) {
	defer r.inFlight.Store(false)

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if r.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
	}
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", zap.String("job_id", jobID), zap.Any("panic", rec))
			r.fail(jobID, params, 0, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	logger := r.logger.With(zap.String("job_id", jobID), zap.String("target_url", params.TargetURL))

	if err := r.jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusRunning, crawler.JobUpdate{}); err != nil {
		logger.Error("failed to mark job running", zap.Error(err))
		r.fail(jobID, params, 0, err.Error())
		return
	}

	if r.cfg.WipePages {
		deleted, err := r.pages.DeleteAllPages(ctx)
		if err != nil {
			r.fail(jobID, params, 0, fmt.Sprintf("wipe pages: %v", err))
			return
		}
		logger.Info("cleared page store", zap.Int("deleted", deleted))
	}

	stats, err := r.crawl.Run(ctx, params)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("crawl timed out after %s", r.cfg.JobTimeout)
		}
		r.fail(jobID, params, stats.PagesScraped, msg)
		return
	}

	chunks := 0
	switch {
	case params.SkipReindex:
		logger.Info("reindex skipped by request")
	case stats.PagesScraped == 0:
		logger.Warn("no pages scraped, skipping reindex")
	default:
		chunks, err = r.pipeline.ReindexAll(ctx)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				msg = fmt.Sprintf("crawl timed out after %s", r.cfg.JobTimeout)
			}
			r.fail(jobID, params, stats.PagesScraped, msg)
			return
		}
	}

	err = r.jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusCompleted, crawler.JobUpdate{
		PagesScraped:        crawler.IntPtr(stats.PagesScraped),
		ChunksIndexed:       crawler.IntPtr(chunks),
		LastSuccessfulJobID: jobID,
	})
	if err != nil {
		logger.Error("failed to mark job completed", zap.Error(err))
		return
	}
	metrics.JobsTotal.WithLabelValues(string(crawler.JobStatusCompleted)).Inc()
	logger.Info("job completed",
		zap.Int("pages_scraped", stats.PagesScraped),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("chunks_indexed", chunks),
	)
	r.publishEvent(jobID, params, crawler.JobStatusCompleted, stats.PagesScraped, chunks)
}

// fail marks the job Failed with a truncated message. It uses a fresh
// context so a timed-out run context cannot block the bookkeeping.
func (r *Runner) fail(jobID string, params crawler.RunParams, pages int, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusFailed, crawler.JobUpdate{
		PagesScraped: crawler.IntPtr(pages),
		ErrorText:    crawler.TruncateErrorText(msg),
	})
	if err != nil {
		r.logger.Error("failed to mark job failed",
			zap.String("job_id", jobID), zap.Error(err))
		return
	}
	metrics.JobsTotal.WithLabelValues(string(crawler.JobStatusFailed)).Inc()
	r.logger.Warn("job failed", zap.String("job_id", jobID), zap.String("error", msg))
	r.publishEvent(jobID, params, crawler.JobStatusFailed, pages, 0)
}

// publishEvent pushes the terminal-state event. Publish failures are
// logged only.
func (r *Runner) publishEvent(jobID string, params crawler.RunParams, status crawler.JobStatus, pages, chunks int) {
	if r.publisher == nil || r.cfg.EventTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := JobEvent{
		JobID:         jobID,
		TargetURL:     params.TargetURL,
		Status:        string(status),
		PagesScraped:  pages,
		ChunksIndexed: chunks,
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.EventTopic, event); err != nil {
		r.logger.Warn("failed to publish job event",
			zap.String("job_id", jobID), zap.Error(err))
	}
}
