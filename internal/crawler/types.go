// Package crawler defines the core types shared across the crawl and
// indexing subsystems: jobs, pages, and the contracts their stores satisfy.
package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl-and-index job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// MaxErrorTextLen bounds the stored error message on failed jobs.
const MaxErrorTextLen = 500

// IsTerminal reports whether no further transition is permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a legal transition.
// Pending may only become Running; Running may only become Completed or
// Failed; terminal states admit nothing. Same-state writes are allowed so
// counter updates mid-run do not need a separate store operation.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// TruncateErrorText bounds an error message for persistence.
func TruncateErrorText(msg string) string {
	if len(msg) > MaxErrorTextLen {
		return msg[:MaxErrorTextLen]
	}
	return msg
}

// Job is the persisted record of one crawl-and-index request. Jobs are
// append-only history: they are never deleted, and once a job reaches a
// terminal status its row no longer changes.
type Job struct {
	ID                  string     `json:"id"`
	TargetURL           string     `json:"target_url"`
	Status              JobStatus  `json:"status"`
	PagesScraped        int        `json:"pages_scraped"`
	ChunksIndexed       int        `json:"chunks_indexed"`
	ErrorText           string     `json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	LastSuccessfulJobID string     `json:"last_successful_job_id,omitempty"`
}

// Page is the persisted snapshot of one crawled URL. The canonical URL is
// the unique key: re-scraping updates the row in place.
type Page struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	HTML       string    `json:"html"`
	IsHomepage bool      `json:"is_homepage"`
	ScrapedAt  time.Time `json:"scraped_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FetchOutcome is the result of loading and extracting a single URL.
// A per-URL failure is data, not control flow: the crawl loop branches on
// Err and continues.
type FetchOutcome struct {
	URL   string
	Title string
	Text  string
	HTML  string
	Links []string
	Err   error
}

// RunParams captures the per-run knobs the controller honors.
type RunParams struct {
	TargetURL  string
	PathPrefix string
	SinglePage bool
	MaxPages   int // 0 means unlimited
	// SkipReindex leaves the vector index untouched after the crawl.
	SkipReindex bool
}

// RunStats summarizes a finished crawl loop.
type RunStats struct {
	PagesScraped int
	PagesFailed  int
}
