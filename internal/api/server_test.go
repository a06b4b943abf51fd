package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/job"
	"github.com/opendatahub/dataset-crawler/internal/service"
)

type fakeCrawler struct {
	startErr  error
	cancelErr error
	jobs      map[string]job.CrawlJob

	lastSiteID string
	lastOpts   job.Options
}

func (f *fakeCrawler) StartCrawl(_ context.Context, siteID string, opts job.Options) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.lastSiteID = siteID
	f.lastOpts = opts
	return "job-1", nil
}

func (f *fakeCrawler) CancelCrawl(context.Context, string) error {
	return f.cancelErr
}

func (f *fakeCrawler) GetJob(_ context.Context, jobID string) (job.CrawlJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return job.CrawlJob{}, job.ErrNotFound
	}
	return j, nil
}

func (f *fakeCrawler) ListJobs(_ context.Context, limit int) ([]job.CrawlJob, error) {
	out := make([]job.CrawlJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T, f *fakeCrawler, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(f, prometheus.NewRegistry(), cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStartCrawlAccepted(t *testing.T) {
	t.Parallel()

	f := &fakeCrawler{}
	srv := newTestServer(t, f, Config{})

	resp := postJSON(t, srv.URL+"/v1/crawl/start",
		`{"site_id":"test-portal","options":{"page_budget":25,"test_mode":true}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "job-1", body["job_id"])
	require.Equal(t, "test-portal", f.lastSiteID)
	require.Equal(t, 25, f.lastOpts.PageBudget)
	require.True(t, f.lastOpts.TestMode)
}

func TestStartCrawlBadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCrawler{}, Config{})

	resp := postJSON(t, srv.URL+"/v1/crawl/start", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/crawl/start", `{"options":{}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartCrawlErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown site", fmt.Errorf("%w: nope", service.ErrConfigNotFound), http.StatusNotFound},
		{"bad options", fmt.Errorf("%w: page_budget", service.ErrInvalidOptions), http.StatusBadRequest},
		{"internal", fmt.Errorf("store down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeCrawler{startErr: tc.err}, Config{})
			resp := postJSON(t, srv.URL+"/v1/crawl/start", `{"site_id":"x"}`)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestGetJobIncludesDuration(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(42 * time.Second)
	f := &fakeCrawler{jobs: map[string]job.CrawlJob{
		"job-1": {
			ID:          "job-1",
			Status:      job.StatusCompleted,
			Progress:    100,
			StartedAt:   &started,
			CompletedAt: &completed,
		},
	}}
	srv := newTestServer(t, f, Config{})

	resp := getURL(t, srv.URL+"/v1/crawl/jobs/job-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		JobID           string  `json:"job_id"`
		Status          string  `json:"status"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "job-1", body.JobID)
	require.Equal(t, "completed", body.Status)
	require.Equal(t, float64(42), body.DurationSeconds)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCrawler{}, Config{})
	resp := getURL(t, srv.URL+"/v1/crawl/jobs/missing")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	f := &fakeCrawler{jobs: map[string]job.CrawlJob{
		"job-1": {ID: "job-1", Status: job.StatusRunning},
	}}
	srv := newTestServer(t, f, Config{})

	resp := getURL(t, srv.URL+"/v1/crawl/jobs?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Jobs, 1)

	resp = getURL(t, srv.URL+"/v1/crawl/jobs?limit=zero")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJobStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"not found", job.ErrNotFound, http.StatusNotFound},
		{"terminal", fmt.Errorf("%w: job is completed", job.ErrInvalidTransition), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeCrawler{cancelErr: tc.err}, Config{})
			resp := postJSON(t, srv.URL+"/v1/crawl/jobs/job-1/cancel", "")
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeCrawler{}, Config{})

	require.Equal(t, http.StatusOK, getURL(t, srv.URL+"/healthz").StatusCode)
	require.Equal(t, http.StatusOK, getURL(t, srv.URL+"/readyz").StatusCode)
	require.Equal(t, http.StatusOK, getURL(t, srv.URL+"/metrics").StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := &fakeCrawler{jobs: map[string]job.CrawlJob{"job-1": {ID: "job-1"}}}
	srv := newTestServer(t, f, Config{Auth: AuthConfig{Enabled: true, APIKey: "sekrit"}})

	resp := getURL(t, srv.URL+"/v1/crawl/jobs/job-1")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/crawl/jobs/job-1", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	require.Equal(t, http.StatusOK, authed.StatusCode)

	// Health endpoints stay open.
	require.Equal(t, http.StatusOK, getURL(t, srv.URL+"/healthz").StatusCode)
}
