// Package memory provides map-backed store implementations for tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/echochat/echochat/internal/crawler"
)

// JobStore keeps jobs in a mutex-guarded map.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]crawler.Job
	clock crawler.Clock
}

// NewJobStore creates an empty job store stamping timestamps from clock.
func NewJobStore(clock crawler.Clock) *JobStore {
	return &JobStore{jobs: make(map[string]crawler.Job), clock: clock}
}

func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	update crawler.JobUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("illegal job transition %s -> %s", job.Status, status)
	}

	now := s.clock.Now()
	if job.Status == crawler.JobStatusPending && status == crawler.JobStatusRunning {
		job.StartedAt = &now
	}
	if status.IsTerminal() && !job.Status.IsTerminal() {
		job.CompletedAt = &now
	}
	job.Status = status
	if update.PagesScraped != nil {
		job.PagesScraped = *update.PagesScraped
	}
	if update.ChunksIndexed != nil {
		job.ChunksIndexed = *update.ChunksIndexed
	}
	if update.ErrorText != "" {
		job.ErrorText = crawler.TruncateErrorText(update.ErrorText)
	}
	if update.LastSuccessfulJobID != "" {
		job.LastSuccessfulJobID = update.LastSuccessfulJobID
	}
	s.jobs[jobID] = job
	return nil
}

func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

func (s *JobStore) ListJobs(_ context.Context, limit int) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	// Newest first.
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *JobStore) LastCompletedJob(_ context.Context) (crawler.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  crawler.Job
		found bool
	)
	for _, job := range s.jobs {
		if job.Status != crawler.JobStatusCompleted || job.CompletedAt == nil {
			continue
		}
		if !found || job.CompletedAt.After(*best.CompletedAt) {
			best = job
			found = true
		}
	}
	return best, found, nil
}

func (s *JobStore) ActiveJob(_ context.Context) (crawler.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			return job, true, nil
		}
	}
	return crawler.Job{}, false, nil
}
