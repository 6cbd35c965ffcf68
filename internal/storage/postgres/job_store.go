// Package postgres provides Postgres-backed persistence for jobs and
// page snapshots.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echochat/echochat/internal/crawler"
)

// dbPool is the subset of pgxpool.Pool the stores use. pgxmock satisfies
// it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool creates a pgx connection pool for dsn.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists crawl jobs in the jobs table.
type JobStore struct {
	pool  dbPool
	clock crawler.Clock
}

// NewJobStore wraps an existing pool.
func NewJobStore(pool dbPool, clock crawler.Clock) *JobStore {
	return &JobStore{pool: pool, clock: clock}
}

// Close releases the underlying pool.
func (s *JobStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			target_url TEXT NOT NULL,
			status TEXT NOT NULL,
			pages_scraped INT NOT NULL DEFAULT 0,
			chunks_indexed INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			last_successful_job_id TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}
	return nil
}

func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, target_url, status, created_at)
		VALUES ($1, $2, $3, $4);
	`, job.ID, job.TargetURL, string(job.Status), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job, refusing moves out of terminal
// states, and stamps counters and timestamps in the same statement.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	update crawler.JobUpdate,
) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}
	if !crawler.JobStatus(current).CanTransition(status) {
		return fmt.Errorf("illegal job transition %s -> %s", current, status)
	}

	update.ErrorText = crawler.TruncateErrorText(update.ErrorText)
	now := s.clock.Now()
	_, err = s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			pages_scraped = COALESCE($3, pages_scraped),
			chunks_indexed = COALESCE($4, chunks_indexed),
			error_message = CASE WHEN $5 <> '' THEN $5 ELSE error_message END,
			last_successful_job_id = CASE WHEN $6 <> '' THEN $6 ELSE last_successful_job_id END,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $7 ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') AND completed_at IS NULL THEN $7 ELSE completed_at END
		WHERE id = $1;
	`, jobID, string(status), update.PagesScraped, update.ChunksIndexed,
		update.ErrorText, update.LastSuccessfulJobID, now)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

const jobColumns = `id, target_url, status, pages_scraped, chunks_indexed,
	error_message, created_at, started_at, completed_at, last_successful_job_id`

func scanJob(row pgx.Row) (crawler.Job, error) {
	var (
		job    crawler.Job
		status string
	)
	err := row.Scan(
		&job.ID, &job.TargetURL, &status, &job.PagesScraped, &job.ChunksIndexed,
		&job.ErrorText, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		&job.LastSuccessfulJobID,
	)
	if err != nil {
		return crawler.Job{}, err
	}
	job.Status = crawler.JobStatus(status)
	return job, nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return crawler.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *JobStore) ListJobs(ctx context.Context, limit int) ([]crawler.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawler.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) LastCompletedJob(ctx context.Context) (crawler.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE status = 'completed'
		ORDER BY completed_at DESC LIMIT 1;`)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, false, nil
	}
	if err != nil {
		return crawler.Job{}, false, fmt.Errorf("failed to get last completed job: %w", err)
	}
	return job, true, nil
}

func (s *JobStore) ActiveJob(ctx context.Context) (crawler.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at DESC LIMIT 1;`)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, false, nil
	}
	if err != nil {
		return crawler.Job{}, false, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, true, nil
}
