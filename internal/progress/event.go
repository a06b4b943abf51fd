// Package progress provides the event variants, non-blocking hub, and emitter
// interface used to report crawl progress to pluggable sinks (logs,
// Prometheus). Emission never blocks the crawl path.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageJobCancelled Stage = "JOB_CANCELLED"
	StagePageDone     Stage = "PAGE_DONE"
	StagePageError    Stage = "PAGE_ERROR"
	StageRecord       Stage = "RECORD"
)

// Event captures one unit of crawl progress.
type Event struct {
	// JobID identifies the crawl job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site labels the source being crawled.
	Site string
	// URL optionally carries the page involved.
	URL string
	// Outcome is set on StageRecord events only.
	Outcome dataset.Outcome
	// Dur carries the wall time for job-terminal events.
	Dur time.Duration
	// Note holds low-volume context such as error text.
	Note string
}

// Validate performs coarse checks before an event enters the hub.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StageJobCancelled, StagePageDone, StagePageError:
	case StageRecord:
		if e.Outcome == "" {
			return errors.New("record event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
