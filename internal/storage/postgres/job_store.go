package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opendatahub/dataset-crawler/internal/job"
)

// JobStore persists crawl job records. Statistics land both in discrete
// columns (queryable) and in a JSONB snapshot (forward compatible).
type JobStore struct {
	pool dbPool
}

// NewJobStore constructs a store from an existing pool.
func NewJobStore(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `job_id, site_id, start_url, crawler_type, options, status, progress,
	current_page, pages_crawled, datasets_found, datasets_created, datasets_updated,
	datasets_unchanged, duplicates_skipped, errors_count, statistics, error_message,
	error_details, created_by, created_at, started_at, completed_at, updated_at`

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, j job.CrawlJob) error {
	args, err := jobArgs(j)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO crawl_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		args...)
	if err != nil {
		return fmt.Errorf("insert crawl job: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of a job row.
func (s *JobStore) Update(ctx context.Context, j job.CrawlJob) error {
	statsJSON, err := json.Marshal(j.Statistics)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	detailsJSON, err := marshalDetails(j.ErrorDetails)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET
	status = $2,
	progress = $3,
	current_page = $4,
	pages_crawled = $5,
	datasets_found = $6,
	datasets_created = $7,
	datasets_updated = $8,
	datasets_unchanged = $9,
	duplicates_skipped = $10,
	errors_count = $11,
	statistics = $12,
	error_message = $13,
	error_details = $14,
	started_at = $15,
	completed_at = $16,
	updated_at = $17
WHERE job_id = $1`,
		j.ID,
		string(j.Status),
		j.Progress,
		j.CurrentPage,
		j.Statistics.PagesCrawled,
		j.Statistics.DatasetsFound,
		j.Statistics.DatasetsCreated,
		j.Statistics.DatasetsUpdated,
		j.Statistics.DatasetsUnchanged,
		j.Statistics.DuplicatesSkipped,
		j.Statistics.ErrorsCount,
		statsJSON,
		j.ErrorMessage,
		detailsJSON,
		j.StartedAt,
		j.CompletedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update crawl job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", j.ID, job.ErrNotFound)
	}
	return nil
}

// Get fetches one job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (job.CrawlJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, job.ErrNotFound)
	}
	if err != nil {
		return job.CrawlJob{}, fmt.Errorf("select crawl job: %w", err)
	}
	return j, nil
}

// List returns up to limit jobs, newest first.
func (s *JobStore) List(ctx context.Context, limit int) ([]job.CrawlJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list crawl jobs: %w", err)
	}
	defer rows.Close()

	var out []job.CrawlJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl jobs: %w", err)
	}
	return out, nil
}

func jobArgs(j job.CrawlJob) ([]any, error) {
	optsJSON, err := json.Marshal(j.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	statsJSON, err := json.Marshal(j.Statistics)
	if err != nil {
		return nil, fmt.Errorf("marshal statistics: %w", err)
	}
	detailsJSON, err := marshalDetails(j.ErrorDetails)
	if err != nil {
		return nil, err
	}
	return []any{
		j.ID,
		j.SiteID,
		j.StartURL,
		j.CrawlerType,
		optsJSON,
		string(j.Status),
		j.Progress,
		j.CurrentPage,
		j.Statistics.PagesCrawled,
		j.Statistics.DatasetsFound,
		j.Statistics.DatasetsCreated,
		j.Statistics.DatasetsUpdated,
		j.Statistics.DatasetsUnchanged,
		j.Statistics.DuplicatesSkipped,
		j.Statistics.ErrorsCount,
		statsJSON,
		j.ErrorMessage,
		detailsJSON,
		j.CreatedBy,
		j.CreatedAt,
		j.StartedAt,
		j.CompletedAt,
		j.UpdatedAt,
	}, nil
}

func marshalDetails(details map[string]string) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal error details: %w", err)
	}
	return b, nil
}

func scanJob(row pgx.Row) (job.CrawlJob, error) {
	var (
		j           job.CrawlJob
		status      string
		optsJSON    []byte
		statsJSON   []byte
		detailsJSON []byte
	)
	err := row.Scan(
		&j.ID,
		&j.SiteID,
		&j.StartURL,
		&j.CrawlerType,
		&optsJSON,
		&status,
		&j.Progress,
		&j.CurrentPage,
		&j.Statistics.PagesCrawled,
		&j.Statistics.DatasetsFound,
		&j.Statistics.DatasetsCreated,
		&j.Statistics.DatasetsUpdated,
		&j.Statistics.DatasetsUnchanged,
		&j.Statistics.DuplicatesSkipped,
		&j.Statistics.ErrorsCount,
		&statsJSON,
		&j.ErrorMessage,
		&detailsJSON,
		&j.CreatedBy,
		&j.CreatedAt,
		&j.StartedAt,
		&j.CompletedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return job.CrawlJob{}, err
	}
	j.Status = job.Status(status)
	if len(optsJSON) > 0 {
		if err := json.Unmarshal(optsJSON, &j.Options); err != nil {
			return job.CrawlJob{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	// Discrete columns are authoritative for counters; the snapshot is kept
	// for consumers outside this module.
	_ = statsJSON
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &j.ErrorDetails); err != nil {
			return job.CrawlJob{}, fmt.Errorf("unmarshal error details: %w", err)
		}
	}
	return j, nil
}
