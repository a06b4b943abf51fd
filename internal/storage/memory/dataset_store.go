package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/gateway"
)

// DatasetStore keeps dataset records keyed by identity hash.
type DatasetStore struct {
	mu   sync.RWMutex
	recs map[string]dataset.Record
}

// NewDatasetStore constructs an empty DatasetStore.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{recs: make(map[string]dataset.Record)}
}

// GetByHash looks a record up by its identity hash.
func (s *DatasetStore) GetByHash(_ context.Context, hash string) (dataset.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[hash]
	if !ok {
		return dataset.Record{}, fmt.Errorf("hash %s: %w", hash, gateway.ErrNotFound)
	}
	return rec, nil
}

// InsertBatch stores all records in one call. An existing hash is
// overwritten; the gateway's lookup step makes that case unreachable in
// practice.
func (s *DatasetStore) InsertBatch(_ context.Context, recs []dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.recs[rec.Hash] = rec
	}
	return nil
}

// UpdateContent overwrites the stored record for rec.Hash.
func (s *DatasetStore) UpdateContent(_ context.Context, rec dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.Hash]; !ok {
		return fmt.Errorf("hash %s: %w", rec.Hash, gateway.ErrNotFound)
	}
	s.recs[rec.Hash] = rec
	return nil
}

// TouchLastCrawled bumps only last_crawled_at.
func (s *DatasetStore) TouchLastCrawled(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[hash]
	if !ok {
		return fmt.Errorf("hash %s: %w", hash, gateway.ErrNotFound)
	}
	rec.LastCrawled = at
	s.recs[hash] = rec
	return nil
}

// Len reports how many records are stored.
func (s *DatasetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
