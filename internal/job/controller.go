package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/gateway"
	"github.com/opendatahub/dataset-crawler/internal/progress"
)

// Walker runs one finite site walk, reporting through the observer it was
// constructed with. internal/walker provides the real implementation.
type Walker interface {
	Walk(ctx context.Context, jobID string) error
}

// Gateway is the slice of the dedup gateway the controller drives.
type Gateway interface {
	Add(ctx context.Context, rec dataset.Record) (dataset.Outcome, error)
	Flush(ctx context.Context) error
	Discard() int
	Close() error
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// DefaultGraceTimeout bounds how long a cancelled job waits for in-flight
// fetches to drain before finalizing anyway.
const DefaultGraceTimeout = 30 * time.Second

// Controller drives exactly one job from pending to a terminal state. It is
// the sole writer of the job record during the run and implements
// walker.Observer to fold page and record callbacks into statistics.
type Controller struct {
	store   Store
	walker  Walker
	gw      Gateway
	emitter progress.Emitter
	clock   Clock
	logger  *zap.Logger
	grace   time.Duration

	mu         sync.Mutex
	job        CrawlJob
	cancelWalk context.CancelFunc
	cancelled  bool
	fatalErr   error
}

// NewController wires a controller around an accepted job record. The job
// must be in pending status.
func NewController(j CrawlJob, store Store, w Walker, gw Gateway, emitter progress.Emitter, clock Clock, logger *zap.Logger) (*Controller, error) {
	if j.Status != StatusPending {
		return nil, fmt.Errorf("%w: controller requires a pending job, got %s", ErrInvalidTransition, j.Status)
	}
	if store == nil || w == nil || gw == nil || clock == nil {
		return nil, errors.New("store, walker, gateway and clock are required")
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:   store,
		walker:  w,
		gw:      gw,
		emitter: emitter,
		clock:   clock,
		logger:  logger.Named("job").With(zap.String("job_id", j.ID)),
		grace:   DefaultGraceTimeout,
		job:     j,
	}, nil
}

// Snapshot returns a copy of the current job record.
func (c *Controller) Snapshot() CrawlJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Cancel requests cooperative cancellation. Jobs already in a terminal state
// reject the request with ErrInvalidTransition; a repeated cancel of a
// still-draining job is a no-op.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Status.Terminal() {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, c.job.Status)
	}
	if c.cancelled {
		return nil
	}
	c.cancelled = true
	if c.cancelWalk != nil {
		c.cancelWalk()
	}
	return nil
}

// Run drives the job to a terminal state. It blocks until the walk finishes
// or, on cancellation, until in-flight fetches drain or the grace timeout
// expires.
func (c *Controller) Run(ctx context.Context) {
	start := c.clock.Now()
	if err := c.toRunning(ctx, start); err != nil {
		// Cancelled while still pending.
		c.finalize(ctx, StatusCancelled, start, nil)
		return
	}
	c.emit(progress.Event{Stage: progress.StageJobStart, TS: start})

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		c.finalize(ctx, StatusCancelled, start, nil)
		return
	}
	c.cancelWalk = cancel
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.walker.Walk(walkCtx, c.job.ID)
	}()

	var walkErr error
	select {
	case walkErr = <-done:
	case <-walkCtx.Done():
		// Cancellation (or parent shutdown): let in-flight fetches drain,
		// bounded by the grace timeout.
		select {
		case walkErr = <-done:
		case <-time.After(c.grace):
			c.logger.Warn("walk did not drain within grace timeout",
				zap.Duration("grace", c.grace))
		}
	}

	c.mu.Lock()
	cancelled := c.cancelled
	fatal := c.fatalErr
	c.mu.Unlock()

	switch {
	case cancelled:
		c.finalize(ctx, StatusCancelled, start, nil)
	case fatal != nil:
		c.finalize(ctx, StatusFailed, start, fatal)
	case walkErr != nil:
		c.finalize(ctx, StatusFailed, start, walkErr)
	default:
		if err := c.gw.Flush(ctx); err != nil {
			c.finalize(ctx, StatusFailed, start, err)
			return
		}
		c.finalize(ctx, StatusCompleted, start, nil)
	}
}

// OnPageCrawled implements walker.Observer.
func (c *Controller) OnPageCrawled(pageURL string) {
	c.mu.Lock()
	c.job.Statistics.PagesCrawled++
	c.job.CurrentPage = pageURL
	c.job.Progress = c.computeProgressLocked()
	snap := c.job
	c.mu.Unlock()

	c.persistTick(snap)
	c.emit(progress.Event{Stage: progress.StagePageDone, URL: pageURL})
}

// OnPageError implements walker.Observer.
func (c *Controller) OnPageError(pageURL string, err error) {
	c.mu.Lock()
	c.job.Statistics.ErrorsCount++
	snap := c.job
	c.mu.Unlock()

	c.logger.Warn("page error", zap.String("url", pageURL), zap.Error(err))
	c.persistTick(snap)
	c.emit(progress.Event{Stage: progress.StagePageError, URL: pageURL, Note: err.Error()})
}

// OnRecordFound implements walker.Observer: each normalized record flows
// through the gateway and its outcome lands in the statistics.
func (c *Controller) OnRecordFound(rec dataset.Record) {
	outcome, err := c.gw.Add(context.Background(), rec)

	c.mu.Lock()
	c.job.Statistics.DatasetsFound++
	switch outcome {
	case dataset.OutcomeCreated:
		c.job.Statistics.DatasetsCreated++
	case dataset.OutcomeUpdated:
		c.job.Statistics.DatasetsUpdated++
	case dataset.OutcomeUnchanged:
		c.job.Statistics.DatasetsUnchanged++
	case dataset.OutcomeDuplicateSkipped:
		c.job.Statistics.DuplicatesSkipped++
	case dataset.OutcomeError:
		c.job.Statistics.ErrorsCount++
	}
	if errors.Is(err, gateway.ErrStorageExhausted) && c.fatalErr == nil {
		c.fatalErr = err
		if c.cancelWalk != nil {
			c.cancelWalk()
		}
	}
	snap := c.job
	c.mu.Unlock()

	if err != nil && !errors.Is(err, gateway.ErrStorageExhausted) {
		c.logger.Warn("record store error", zap.String("url", rec.URL), zap.Error(err))
	}
	c.persistTick(snap)
	if outcome != "" {
		c.emit(progress.Event{Stage: progress.StageRecord, URL: rec.URL, Outcome: outcome})
	}
}

func (c *Controller) toRunning(_ context.Context, now time.Time) error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.job.Status = StatusRunning
	c.job.StartedAt = &now
	c.job.UpdatedAt = now
	snap := c.job
	c.mu.Unlock()

	c.persistTick(snap)
	return nil
}

func (c *Controller) finalize(ctx context.Context, status Status, start time.Time, cause error) {
	now := c.clock.Now()

	c.mu.Lock()
	if status == StatusCancelled {
		n := c.gw.Discard()
		if n > 0 {
			c.logger.Info("discarded buffered records on cancel", zap.Int("count", n))
		}
	}
	c.job.Status = status
	c.job.CompletedAt = &now
	c.job.UpdatedAt = now
	if status == StatusCompleted {
		c.job.Progress = 100
	}
	if cause != nil {
		c.job.ErrorMessage = cause.Error()
		c.job.ErrorDetails = map[string]string{
			"type":   fmt.Sprintf("%T", cause),
			"job_id": c.job.ID,
		}
	}
	snap := c.job
	c.mu.Unlock()

	if err := c.gw.Close(); err != nil {
		c.logger.Warn("close gateway", zap.Error(err))
	}

	// Terminal persists are unconditional; a failure here is loud but the
	// in-memory snapshot remains authoritative for API reads.
	if err := c.store.Update(ctx, snap); err != nil {
		c.logger.Error("persist terminal job state", zap.Error(err))
	}

	evt := progress.Event{Dur: now.Sub(start)}
	switch status {
	case StatusCompleted:
		evt.Stage = progress.StageJobDone
	case StatusCancelled:
		evt.Stage = progress.StageJobCancelled
	default:
		evt.Stage = progress.StageJobError
		if cause != nil {
			evt.Note = cause.Error()
		}
	}
	c.emit(evt)

	c.logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("pages_crawled", snap.Statistics.PagesCrawled),
		zap.Int("datasets_found", snap.Statistics.DatasetsFound),
		zap.Float64("duration_seconds", snap.DurationSeconds()),
	)
}

// computeProgressLocked needs c.mu held.
func (c *Controller) computeProgressLocked() float64 {
	budget := c.job.Options.PageBudget
	if budget <= 0 {
		return c.job.Progress
	}
	pct := float64(c.job.Statistics.PagesCrawled) / float64(budget) * 100
	return math.Min(100, pct)
}

// persistTick is the best-effort mid-run persist: a failed tick is logged
// and the run continues.
func (c *Controller) persistTick(snap CrawlJob) {
	if err := c.store.Update(context.Background(), snap); err != nil {
		c.logger.Debug("persist progress tick failed", zap.Error(err))
	}
}

func (c *Controller) emit(evt progress.Event) {
	evt.JobID = c.job.ID
	evt.Site = c.job.SiteID
	if evt.TS.IsZero() {
		evt.TS = c.clock.Now()
	}
	c.emitter.Emit(evt)
}
