// Package service accepts crawl requests, spins up one job controller per
// accepted job, and answers job lookups against live controllers first and
// the store second.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/gateway"
	"github.com/opendatahub/dataset-crawler/internal/job"
	"github.com/opendatahub/dataset-crawler/internal/progress"
	"github.com/opendatahub/dataset-crawler/internal/sidefile"
	"github.com/opendatahub/dataset-crawler/internal/sites"
	"github.com/opendatahub/dataset-crawler/internal/walker"
)

// Request-level errors surfaced to the API layer.
var (
	ErrConfigNotFound = errors.New("site configuration not found")
	ErrInvalidOptions = errors.New("invalid crawl options")
)

// IDGenerator mints job IDs. internal/id/uuid provides the v7 implementation.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// Config carries service-level settings shared by every job.
type Config struct {
	// SideFileDir is where per-job NDJSON files land.
	SideFileDir string
	// BatchSize bounds the gateway create buffer.
	BatchSize int
	// Walker carries the politeness knobs applied to every walk.
	Walker walker.Config
}

// Service is the crawl orchestrator. Safe for concurrent use.
type Service struct {
	cfg      Config
	registry *sites.Registry
	jobs     job.Store
	datasets gateway.Store
	pub      gateway.Publisher
	emitter  progress.Emitter
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger

	// newWalker exists so tests can substitute the colly engine.
	newWalker func(site sites.Site, cfg walker.Config, obs walker.Observer, logger *zap.Logger) (job.Walker, error)

	mu      sync.Mutex
	running map[string]*job.Controller
	wg      sync.WaitGroup
}

// New wires a Service. pub may be nil; every other dependency is required.
func New(cfg Config, registry *sites.Registry, jobs job.Store, datasets gateway.Store, pub gateway.Publisher, emitter progress.Emitter, ids IDGenerator, clock Clock, logger *zap.Logger) (*Service, error) {
	if registry == nil || jobs == nil || datasets == nil || ids == nil || clock == nil {
		return nil, errors.New("registry, job store, dataset store, id generator and clock are required")
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		jobs:     jobs,
		datasets: datasets,
		pub:      pub,
		emitter:  emitter,
		ids:      ids,
		clock:    clock,
		logger:   logger.Named("service"),
		newWalker: func(site sites.Site, wcfg walker.Config, obs walker.Observer, logger *zap.Logger) (job.Walker, error) {
			return walker.New(site, wcfg, obs, logger)
		},
		running: make(map[string]*job.Controller),
	}, nil
}

// walkHandle defers binding the walker until after the controller exists:
// the walker needs the controller as its observer.
type walkHandle struct {
	inner job.Walker
}

func (h *walkHandle) Walk(ctx context.Context, jobID string) error {
	return h.inner.Walk(ctx, jobID)
}

// StartCrawl validates the request, persists a pending job, and launches its
// controller. The returned ID is immediately queryable via GetJob.
func (s *Service) StartCrawl(ctx context.Context, siteID string, opts job.Options) (string, error) {
	site, err := s.registry.Get(siteID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, siteID)
	}
	if err := opts.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("mint job id: %w", err)
	}
	now := s.clock.Now()
	j := job.CrawlJob{
		ID:          jobID,
		SiteID:      site.ID,
		StartURL:    site.StartURL,
		CrawlerType: site.CrawlerType,
		Options:     opts,
		Status:      job.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return "", fmt.Errorf("persist pending job: %w", err)
	}

	ctrl, err := s.buildController(j, site)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.running[jobID] = ctrl
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctrl.Run(context.Background())
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
	}()

	s.logger.Info("crawl accepted",
		zap.String("job_id", jobID),
		zap.String("site_id", site.ID),
		zap.Int("page_budget", opts.PageBudget),
		zap.Bool("test_mode", opts.TestMode),
	)
	return jobID, nil
}

func (s *Service) buildController(j job.CrawlJob, site sites.Site) (*job.Controller, error) {
	side, err := sidefile.NewWriter(s.cfg.SideFileDir, j.ID)
	if err != nil {
		return nil, fmt.Errorf("prepare side file: %w", err)
	}
	gw, err := gateway.New(s.datasets, side, s.pub, s.clock, gateway.Config{
		BatchSize: s.cfg.BatchSize,
		TestMode:  j.Options.TestMode,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	handle := &walkHandle{}
	ctrl, err := job.NewController(j, s.jobs, handle, gw, s.emitter, s.clock, s.logger)
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}

	wcfg := s.cfg.Walker
	wcfg.PageBudget = j.Options.PageBudget
	w, err := s.newWalker(site, wcfg, ctrl, s.logger)
	if err != nil {
		return nil, fmt.Errorf("build walker: %w", err)
	}
	handle.inner = w
	return ctrl, nil
}

// CancelCrawl requests cooperative cancellation of a job. Terminal jobs
// reject with job.ErrInvalidTransition; unknown jobs with job.ErrNotFound.
func (s *Service) CancelCrawl(ctx context.Context, jobID string) error {
	s.mu.Lock()
	ctrl, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		return ctrl.Cancel()
	}

	// No live controller: the job either never existed or already reached a
	// terminal state.
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job is %s", job.ErrInvalidTransition, j.Status)
}

// GetJob returns the freshest snapshot available for a job.
func (s *Service) GetJob(ctx context.Context, jobID string) (job.CrawlJob, error) {
	s.mu.Lock()
	ctrl, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		return ctrl.Snapshot(), nil
	}
	return s.jobs.Get(ctx, jobID)
}

// ListJobs returns up to limit jobs, newest first. Live jobs are reported
// from their controllers so counters are current.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]job.CrawlJob, error) {
	jobs, err := s.jobs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range jobs {
		if ctrl, ok := s.running[j.ID]; ok {
			jobs[i] = ctrl.Snapshot()
		}
	}
	return jobs, nil
}

// Shutdown requests cancellation of every live job and waits for their
// controllers to finish, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, ctrl := range s.running {
		if err := ctrl.Cancel(); err != nil && !errors.Is(err, job.ErrInvalidTransition) {
			s.logger.Warn("cancel on shutdown", zap.Error(err))
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}
