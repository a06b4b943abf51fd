package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub/dataset-crawler/internal/job"
)

func newJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStore(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleJob() job.CrawlJob {
	created := time.Unix(1700000000, 0).UTC()
	return job.CrawlJob{
		ID:        "job-1",
		SiteID:    "test-portal",
		StartURL:  "http://x.test/list",
		Options:   job.Options{PageBudget: 10},
		Status:    job.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func jobRowColumns() []string {
	return []string{
		"job_id", "site_id", "start_url", "crawler_type", "options", "status", "progress",
		"current_page", "pages_crawled", "datasets_found", "datasets_created", "datasets_updated",
		"datasets_unchanged", "duplicates_skipped", "errors_count", "statistics", "error_message",
		"error_details", "created_by", "created_at", "started_at", "completed_at", "updated_at",
	}
}

func addJobRow(rows *pgxmock.Rows, j job.CrawlJob) *pgxmock.Rows {
	return rows.AddRow(
		j.ID, j.SiteID, j.StartURL, j.CrawlerType,
		[]byte(`{"page_budget":10}`), string(j.Status), j.Progress,
		j.CurrentPage,
		j.Statistics.PagesCrawled, j.Statistics.DatasetsFound, j.Statistics.DatasetsCreated,
		j.Statistics.DatasetsUpdated, j.Statistics.DatasetsUnchanged, j.Statistics.DuplicatesSkipped,
		j.Statistics.ErrorsCount,
		[]byte(`{}`), j.ErrorMessage, []byte(nil), j.CreatedBy,
		j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
}

func TestJobCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	mock.ExpectExec("INSERT INTO crawl_jobs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), sampleJob()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobGetScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	j := sampleJob()
	j.Status = job.StatusRunning
	j.Statistics.PagesCrawled = 7

	mock.ExpectQuery("SELECT .+ FROM crawl_jobs WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(addJobRow(pgxmock.NewRows(jobRowColumns()), j))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, job.StatusRunning, got.Status)
	require.Equal(t, 7, got.Statistics.PagesCrawled)
	require.Equal(t, 10, got.Options.PageBudget)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobGetNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	mock.ExpectQuery("SELECT .+ FROM crawl_jobs WHERE job_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, job.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobUpdateNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	mock.ExpectExec("UPDATE crawl_jobs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Update(context.Background(), sampleJob())
	require.ErrorIs(t, err, job.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobListNewestFirst(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	j1 := sampleJob()
	j2 := sampleJob()
	j2.ID = "job-2"

	rows := pgxmock.NewRows(jobRowColumns())
	addJobRow(rows, j2)
	addJobRow(rows, j1)
	mock.ExpectQuery("SELECT .+ FROM crawl_jobs ORDER BY created_at DESC").
		WithArgs(2).
		WillReturnRows(rows)

	jobs, err := store.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
