// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opendatahub/dataset-crawler/internal/job"
)

// JobStore keeps crawl job records in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]job.CrawlJob
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]job.CrawlJob)}
}

// Create stores a new job record.
func (s *JobStore) Create(_ context.Context, j job.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return fmt.Errorf("job %s: %w", j.ID, job.ErrAlreadyExists)
	}
	s.jobs[j.ID] = j
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (job.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return job.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, job.ErrNotFound)
	}
	return j, nil
}

// Update overwrites a job record.
func (s *JobStore) Update(_ context.Context, j job.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return fmt.Errorf("job %s: %w", j.ID, job.ErrNotFound)
	}
	s.jobs[j.ID] = j
	return nil
}

// List returns up to limit jobs, newest first by creation time.
func (s *JobStore) List(_ context.Context, limit int) ([]job.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]job.CrawlJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
