package crawler

import (
	"context"
	"time"
)

// JobStore persists job lifecycle records.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	// UpdateJobStatus transitions a job and stamps timestamps/counters.
	// Implementations must refuse transitions out of terminal states.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	// LastCompletedJob returns the most recently completed job, or ok=false.
	LastCompletedJob(ctx context.Context) (Job, bool, error)
	// ActiveJob reports whether any job is currently pending or running.
	ActiveJob(ctx context.Context) (Job, bool, error)
}

// JobUpdate carries the fields stamped alongside a status transition.
// Nil pointers leave the stored value untouched.
type JobUpdate struct {
	PagesScraped        *int
	ChunksIndexed       *int
	ErrorText           string
	LastSuccessfulJobID string
}

// PageStore persists crawled page snapshots keyed by canonical URL.
type PageStore interface {
	// UpsertPage inserts a page or updates the existing row in place.
	UpsertPage(ctx context.Context, page Page) error
	GetPage(ctx context.Context, url string) (Page, error)
	ListPages(ctx context.Context) ([]Page, error)
	Homepage(ctx context.Context) (Page, bool, error)
	CountPages(ctx context.Context) (int, error)
	// DeleteAllPages clears the store ahead of a fresh crawl.
	DeleteAllPages(ctx context.Context) (int, error)
}

// Fetcher loads one URL through the rendering layer and extracts its
// title, text and outbound links. Loader failures are reported through
// FetchOutcome.Err; an error return means the fetcher itself is broken
// (for example the browser process died) and the run must abort.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchOutcome, error)
}

// BlobStore archives raw artifacts and returns a URI. Optional.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// IntPtr is a small helper for building JobUpdate values.
func IntPtr(v int) *int {
	return &v
}
