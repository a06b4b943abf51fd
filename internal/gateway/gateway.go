// Package gateway classifies normalized records against prior state and
// persists them. Identity is the record's Hash; ContentHash only decides
// Updated vs Unchanged. Creates are batched; updates and touches apply
// immediately.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/sidefile"
)

// ErrNotFound is returned by Store.GetByHash when no record carries the hash.
var ErrNotFound = errors.New("record not found")

// ErrStorageExhausted reports that both the primary store and the side-file
// fallback refused a flush. It is the only gateway error a caller should
// treat as fatal to the job.
var ErrStorageExhausted = errors.New("primary store and side-file fallback both failed")

// Store is the persistence surface the gateway writes through.
type Store interface {
	GetByHash(ctx context.Context, hash string) (dataset.Record, error)
	InsertBatch(ctx context.Context, recs []dataset.Record) error
	UpdateContent(ctx context.Context, rec dataset.Record) error
	TouchLastCrawled(ctx context.Context, hash string, at time.Time) error
}

// Publisher receives Created and Updated records for downstream consumers.
// Publishing is best effort; failures are logged and never affect outcomes.
type Publisher interface {
	Publish(ctx context.Context, rec dataset.Record, outcome dataset.Outcome) error
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// DefaultBatchSize bounds the create buffer before a flush is forced.
const DefaultBatchSize = 10

// Config carries per-job gateway settings.
type Config struct {
	// BatchSize bounds buffered creates (default 10).
	BatchSize int
	// TestMode routes every record to the side file and skips classification
	// and all store writes.
	TestMode bool
}

// Gateway serves exactly one job run. It is safe for concurrent Add calls
// from the walker's page chains.
type Gateway struct {
	store  Store
	side   *sidefile.Writer
	pub    Publisher
	clock  Clock
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	buffer   []dataset.Record
	buffered map[string]struct{}
}

// New builds a gateway for one job. side must be non-nil: it backs both
// test mode and the flush fallback. pub may be nil.
func New(store Store, side *sidefile.Writer, pub Publisher, clock Clock, cfg Config, logger *zap.Logger) (*Gateway, error) {
	if store == nil && !cfg.TestMode {
		return nil, errors.New("store is required outside test mode")
	}
	if side == nil {
		return nil, errors.New("side file writer is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Gateway{
		store:    store,
		side:     side,
		pub:      pub,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("gateway"),
		buffered: make(map[string]struct{}),
	}, nil
}

// Add classifies and stores one record.
//
// In test mode the record is appended to the side file and the returned
// outcome is empty: classification is skipped entirely. Otherwise the
// outcome is one of Created, Updated, Unchanged, DuplicateSkipped or Error.
// A non-nil error accompanies OutcomeError; only errors matching
// ErrStorageExhausted are fatal to the job.
func (g *Gateway) Add(ctx context.Context, rec dataset.Record) (dataset.Outcome, error) {
	if g.cfg.TestMode {
		if err := g.side.Append(rec); err != nil {
			return "", fmt.Errorf("test-mode side file append: %w", err)
		}
		return "", nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, inFlight := g.buffered[rec.Hash]; inFlight {
		return dataset.OutcomeDuplicateSkipped, nil
	}

	now := g.clock.Now()
	existing, err := g.store.GetByHash(ctx, rec.Hash)
	switch {
	case errors.Is(err, ErrNotFound):
		rec.CreatedAt = now
		rec.UpdatedAt = now
		rec.LastCrawled = now
		g.buffer = append(g.buffer, rec)
		g.buffered[rec.Hash] = struct{}{}
		if len(g.buffer) >= g.cfg.BatchSize {
			if err := g.flushLocked(ctx); err != nil {
				return dataset.OutcomeError, err
			}
		}
		g.publish(ctx, rec, dataset.OutcomeCreated)
		return dataset.OutcomeCreated, nil

	case err != nil:
		return dataset.OutcomeError, fmt.Errorf("lookup by hash: %w", err)

	case existing.ContentHash == rec.ContentHash:
		if err := g.store.TouchLastCrawled(ctx, rec.Hash, now); err != nil {
			return dataset.OutcomeError, fmt.Errorf("touch last_crawled_at: %w", err)
		}
		return dataset.OutcomeUnchanged, nil

	default:
		// Content changed: overwrite content fields, keep identity and the
		// originating job.
		rec.CrawlJobID = existing.CrawlJobID
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = now
		rec.LastCrawled = now
		if err := g.store.UpdateContent(ctx, rec); err != nil {
			return dataset.OutcomeError, fmt.Errorf("update content: %w", err)
		}
		g.publish(ctx, rec, dataset.OutcomeUpdated)
		return dataset.OutcomeUpdated, nil
	}
}

// Flush writes any buffered creates. On primary-store failure each record is
// appended to the side file instead; ErrStorageExhausted is returned only
// when that fallback fails too.
func (g *Gateway) Flush(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushLocked(ctx)
}

func (g *Gateway) flushLocked(ctx context.Context) error {
	if len(g.buffer) == 0 {
		return nil
	}
	batch := g.buffer
	g.buffer = nil
	g.buffered = make(map[string]struct{})

	err := g.store.InsertBatch(ctx, batch)
	if err == nil {
		return nil
	}
	g.logger.Warn("batch insert failed, falling back to side file",
		zap.Int("batch_size", len(batch)),
		zap.Error(err),
	)

	for _, rec := range batch {
		if err := g.side.Append(rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageExhausted, err)
		}
	}
	return nil
}

// Discard drops buffered creates without writing them anywhere. Called on
// job cancellation.
func (g *Gateway) Discard() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.buffer)
	g.buffer = nil
	g.buffered = make(map[string]struct{})
	return n
}

// BufferLen reports how many creates are waiting for a flush.
func (g *Gateway) BufferLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buffer)
}

// Close releases the side file. It does not flush; callers decide between
// Flush and Discard first.
func (g *Gateway) Close() error {
	return g.side.Close()
}

func (g *Gateway) publish(ctx context.Context, rec dataset.Record, outcome dataset.Outcome) {
	if g.pub == nil {
		return
	}
	if err := g.pub.Publish(ctx, rec, outcome); err != nil {
		g.logger.Warn("publish outcome failed",
			zap.String("hash", rec.Hash),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}
