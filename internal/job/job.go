// Package job owns the crawl job model, its state machine, and the
// controller that drives one job from dispatch to a terminal state.
package job

import (
	"context"
	"errors"
	"time"
)

// Store lookup and transition errors.
var (
	ErrNotFound          = errors.New("job not found")
	ErrAlreadyExists     = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Status is the crawl job lifecycle state.
type Status string

// Lifecycle states. Terminal states are final: no transition leaves them.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether the state machine permits from → to.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// Options are the per-job knobs accepted at submission. Extra carries
// forward-compatible keys verbatim; the core never interprets them.
type Options struct {
	PageBudget int            `json:"page_budget,omitempty" mapstructure:"page_budget"`
	TestMode   bool           `json:"test_mode,omitempty" mapstructure:"test_mode"`
	Extra      map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// Validate rejects option values the core cannot honor.
func (o Options) Validate() error {
	if o.PageBudget < 0 {
		return errors.New("page_budget must be positive when set")
	}
	return nil
}

// Statistics are the per-job monotonic counters. They only reset when a job
// record is recreated, never within a run.
type Statistics struct {
	PagesCrawled      int `json:"pages_crawled"`
	DatasetsFound     int `json:"datasets_found"`
	DatasetsCreated   int `json:"datasets_created"`
	DatasetsUpdated   int `json:"datasets_updated"`
	DatasetsUnchanged int `json:"datasets_unchanged"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	ErrorsCount       int `json:"errors_count"`
}

// CrawlJob is the durable job record. The controller is its only writer
// while the job runs.
type CrawlJob struct {
	ID           string            `json:"job_id"`
	SiteID       string            `json:"site_id"`
	StartURL     string            `json:"start_url"`
	CrawlerType  string            `json:"crawler_type,omitempty"`
	Options      Options           `json:"options"`
	Status       Status            `json:"status"`
	Progress     float64           `json:"progress_percentage"`
	CurrentPage  string            `json:"current_page,omitempty"`
	Statistics   Statistics        `json:"statistics"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorDetails map[string]string `json:"error_details,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// DurationSeconds is the wall time from start to completion, or zero while
// either endpoint is missing.
func (j CrawlJob) DurationSeconds() float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}

// Store persists job records. Implementations live in internal/storage.
type Store interface {
	Create(ctx context.Context, job CrawlJob) error
	Get(ctx context.Context, jobID string) (CrawlJob, error)
	Update(ctx context.Context, job CrawlJob) error
	// List returns up to limit jobs, newest first.
	List(ctx context.Context, limit int) ([]CrawlJob, error)
}
