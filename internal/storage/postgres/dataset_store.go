// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/gateway"
)

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool opens a pgx pool from the config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// DatasetStore persists dataset records keyed by identity hash.
type DatasetStore struct {
	pool dbPool
}

// NewDatasetStore constructs a store from an existing pool.
func NewDatasetStore(pool dbPool) (*DatasetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DatasetStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DatasetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const datasetColumns = `hash, content_hash, title, description, url, source, tags, extension, crawl_job_id, created_at, updated_at, last_crawled_at`

// GetByHash fetches one record by its identity hash.
func (s *DatasetStore) GetByHash(ctx context.Context, hash string) (dataset.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE hash = $1`, hash)

	var rec dataset.Record
	err := row.Scan(
		&rec.Hash,
		&rec.ContentHash,
		&rec.Title,
		&rec.Description,
		&rec.URL,
		&rec.Source,
		&rec.Tags,
		&rec.Extension,
		&rec.CrawlJobID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.LastCrawled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return dataset.Record{}, fmt.Errorf("hash %s: %w", hash, gateway.ErrNotFound)
	}
	if err != nil {
		return dataset.Record{}, fmt.Errorf("select dataset: %w", err)
	}
	return rec, nil
}

// InsertBatch writes all records inside one transaction. The upsert keeps
// concurrent jobs from losing writes between the gateway's lookup and this
// insert: a record created by another job in the meantime degrades into a
// content update that preserves crawl_job_id and created_at.
func (s *DatasetStore) InsertBatch(ctx context.Context, recs []dataset.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
INSERT INTO datasets (` + datasetColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (hash) DO UPDATE SET
	content_hash = EXCLUDED.content_hash,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	url = EXCLUDED.url,
	source = EXCLUDED.source,
	tags = EXCLUDED.tags,
	extension = EXCLUDED.extension,
	updated_at = EXCLUDED.updated_at,
	last_crawled_at = EXCLUDED.last_crawled_at`

	for _, rec := range recs {
		if _, err := tx.Exec(ctx, insert,
			rec.Hash,
			rec.ContentHash,
			rec.Title,
			rec.Description,
			rec.URL,
			rec.Source,
			rec.Tags,
			rec.Extension,
			rec.CrawlJobID,
			rec.CreatedAt,
			rec.UpdatedAt,
			rec.LastCrawled,
		); err != nil {
			return fmt.Errorf("insert dataset %s: %w", rec.Hash, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// UpdateContent overwrites content fields for rec.Hash. Identity, the
// originating job, and created_at stay untouched.
func (s *DatasetStore) UpdateContent(ctx context.Context, rec dataset.Record) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE datasets SET
	content_hash = $2,
	title = $3,
	description = $4,
	url = $5,
	source = $6,
	tags = $7,
	extension = $8,
	updated_at = $9,
	last_crawled_at = $10
WHERE hash = $1`,
		rec.Hash,
		rec.ContentHash,
		rec.Title,
		rec.Description,
		rec.URL,
		rec.Source,
		rec.Tags,
		rec.Extension,
		rec.UpdatedAt,
		rec.LastCrawled,
	)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hash %s: %w", rec.Hash, gateway.ErrNotFound)
	}
	return nil
}

// TouchLastCrawled bumps only last_crawled_at.
func (s *DatasetStore) TouchLastCrawled(ctx context.Context, hash string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE datasets SET last_crawled_at = $2 WHERE hash = $1`, hash, at)
	if err != nil {
		return fmt.Errorf("touch dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hash %s: %w", hash, gateway.ErrNotFound)
	}
	return nil
}
