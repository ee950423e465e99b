package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/infrastructure/scheduler"
	"github.com/alem-hub/taskchecker/internal/interface/http/handlers"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

type fakeJobs struct {
	mu      sync.Mutex
	infos   []scheduler.JobInfo
	started []string
}

func (f *fakeJobs) ListJobs() []scheduler.JobInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduler.JobInfo(nil), f.infos...)
}

func (f *fakeJobs) RunNow(_ context.Context, name string) (scheduler.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return scheduler.JobResult{JobName: name, Success: true}, nil
}

func (f *fakeJobs) startedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

type fakeRuns struct{ stats *checker.RunStats }

func (f fakeRuns) LastRun() *checker.RunStats { return f.stats }

func newTestServer(jobs *fakeJobs, runs RunSource, health *handlers.CompositeHealthChecker) http.Handler {
	return NewServer(DefaultConfig(), Dependencies{
		Jobs:   jobs,
		Runs:   runs,
		Health: health,
		Logger: logger.Discard(),
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestServer_Health(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("postgres", func(context.Context) error { return nil })
	h := newTestServer(&fakeJobs{}, fakeRuns{}, health)

	rec, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, _ = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Some checks failed: redis")
}

func TestServer_ListJobs(t *testing.T) {
	jobs := &fakeJobs{infos: []scheduler.JobInfo{{
		Name:     "grade_course",
		Schedule: "@every 6h0m0s",
		RunCount: 2,
		Skipped:  1,
	}}}
	h := newTestServer(jobs, fakeRuns{}, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []jobView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "grade_course", resp.Data[0].Name)
	assert.Equal(t, int64(1), resp.Data[0].Skipped)
	assert.Nil(t, resp.Data[0].LastRun)
}

func TestServer_RunJob(t *testing.T) {
	jobs := &fakeJobs{infos: []scheduler.JobInfo{
		{Name: "grade_course"},
		{Name: "busy", Running: true},
	}}
	h := newTestServer(jobs, fakeRuns{}, nil)

	rec, body := do(t, h, http.MethodPost, "/api/v1/jobs/grade_course/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, body.Success)
	assert.Eventually(t, func() bool { return len(jobs.startedJobs()) == 1 }, time.Second, time.Millisecond)

	rec, body = do(t, h, http.MethodPost, "/api/v1/jobs/busy/run")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "job_running", body.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/jobs/missing/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"grade_course"}, jobs.startedJobs())
}

func TestServer_LastRun(t *testing.T) {
	h := newTestServer(&fakeJobs{}, fakeRuns{}, nil)
	rec, body := do(t, h, http.MethodGet, "/api/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_runs", body.Error.Code)

	report := &grading.Report{
		RunID:     "run-7",
		Summaries: []grading.StudentSummary{{Nickname: "amy", Total: 3.5, Mark: 4}},
		Warnings:  []string{"activity report disabled"},
	}
	h = newTestServer(&fakeJobs{}, fakeRuns{stats: &checker.RunStats{
		RunID: "run-7", Students: 1, Workers: 2, Report: report,
	}}, nil)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data runView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-7", resp.Data.RunID)
	assert.Equal(t, 2, resp.Data.Workers)
	assert.Equal(t, report.Summaries, resp.Data.Summaries)
	assert.Equal(t, report.Warnings, resp.Data.Warnings)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Jobs: &fakeJobs{}, Runs: fakeRuns{}, Logger: logger.Discard()})
	s.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, body := do(t, s.Handler(), http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", body.Error.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, Dependencies{Jobs: &fakeJobs{}, Runs: fakeRuns{}, Logger: logger.Discard()})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
