package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/echochat/echochat/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Unix(1700000000, 0).UTC()

func newMockJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewJobStore(mock, fixedClock{now: testNow}), mock
}

func TestJobStore_CreateJob(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "https://site.test/docs", "pending", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateJob(context.Background(), crawler.Job{
		ID:        "job-1",
		TargetURL: "https://site.test/docs",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_UpdateJobStatus_LegalTransition(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	mock.ExpectQuery("SELECT status FROM jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("running"))
	mock.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", "completed", pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "job-1", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJobStatus(context.Background(), "job-1",
		crawler.JobStatusCompleted, crawler.JobUpdate{
			PagesScraped:        crawler.IntPtr(7),
			ChunksIndexed:       crawler.IntPtr(40),
			LastSuccessfulJobID: "job-1",
		})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_UpdateJobStatus_RefusesIllegalTransition(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	mock.ExpectQuery("SELECT status FROM jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))

	err := store.UpdateJobStatus(context.Background(), "job-1",
		crawler.JobStatusRunning, crawler.JobUpdate{})
	require.ErrorContains(t, err, "illegal job transition")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_GetJob(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	started := testNow.Add(time.Second)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "target_url", "status", "pages_scraped", "chunks_indexed",
			"error_message", "created_at", "started_at", "completed_at",
			"last_successful_job_id",
		}).AddRow("job-1", "https://site.test/docs", "running", 3, 0,
			"", testNow, &started, (*time.Time)(nil), ""))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusRunning, job.Status)
	require.Equal(t, 3, job.PagesScraped)
	require.NotNil(t, job.StartedAt)
	require.Nil(t, job.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_LastCompletedJob_NoneIsNotAnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "target_url", "status", "pages_scraped", "chunks_indexed",
			"error_message", "created_at", "started_at", "completed_at",
			"last_successful_job_id",
		}))

	_, ok, err := store.LastCompletedJob(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_ListJobs(t *testing.T) {
	t.Parallel()
	store, mock := newMockJobStore(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY created_at DESC").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "target_url", "status", "pages_scraped", "chunks_indexed",
			"error_message", "created_at", "started_at", "completed_at",
			"last_successful_job_id",
		}).
			AddRow("job-2", "https://site.test/docs", "pending", 0, 0, "", testNow.Add(time.Minute), (*time.Time)(nil), (*time.Time)(nil), "").
			AddRow("job-1", "https://site.test/docs", "failed", 0, 0, "boom", testNow, (*time.Time)(nil), (*time.Time)(nil), ""))

	jobs, err := store.ListJobs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[0].ID)
	require.Equal(t, "boom", jobs[1].ErrorText)
	require.NoError(t, mock.ExpectationsWereMet())
}
