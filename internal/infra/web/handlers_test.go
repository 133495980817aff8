package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
)

type testEnv struct {
	server    *Server
	ingest    *mockIngest
	pipeline  *mockPipeline
	jobs      *mockJobs
	approvals *mockApprovals
	submitter *mockSubmitter
	modes     *mockModeStore
	tasks     *mockTasks
	logBuf    *LogBuffer
	token     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ingest:    newMockIngest(),
		pipeline:  &mockPipeline{BatchN: 2},
		jobs:      newMockJobs(),
		approvals: newMockApprovals(),
		submitter: &mockSubmitter{},
		modes:     &mockModeStore{},
		tasks:     &mockTasks{},
		logBuf:    NewLogBuffer(10),
	}
	logger := zerolog.Nop()
	auth := NewAuthManager("test-secret", false, "", time.Hour)
	env.server = NewServer(ServerDeps{
		Ingest:        env.ingest,
		Pipeline:      env.pipeline,
		Jobs:          env.jobs,
		Approvals:     env.approvals,
		Submitter:     env.submitter,
		Stats:         mockStats{},
		Modes:         env.modes,
		Tasks:         env.tasks,
		Auth:          auth,
		AdminPassword: "hunter2",
		LogBuffer:     env.logBuf,
		BatchSize:     20,
		Log:           &logger,
	})

	rec := httptest.NewRecorder()
	token, err := auth.Mint(rec)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	env.token = token
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := env.server.Router()

	body := strings.NewReader(`{"password":"hunter2"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/login", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["token"] == "" {
		t.Fatal("login should return a token")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"password":"wrong"}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTriggerIngestion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/pipeline/trigger", map[string]any{
		"source": "scraper", "limit": 10, "keywords": []string{"golang"}, "run_full_pipeline": true, "min_score": 60,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["run_id"] != "run-1" {
		t.Fatalf("run_id = %q", out["run_id"])
	}
	if env.ingest.lastParams.MinScore == nil || *env.ingest.lastParams.MinScore != 60 {
		t.Fatalf("min score not passed: %+v", env.ingest.lastParams)
	}

	// run is now visible
	rec = env.request(t, http.MethodGet, "/api/v1/pipeline/runs/run-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run get status = %d", rec.Code)
	}
	rec = env.request(t, http.MethodGet, "/api/v1/pipeline/runs/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d", rec.Code)
	}
}

func TestTriggerUnknownSource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.ingest.TriggerErr = domain.ErrUnknownSource
	rec := env.request(t, http.MethodPost, "/api/v1/pipeline/trigger", map[string]any{"source": "usenet"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTriggerRateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.ingest.TriggerErr = domain.ErrRateLimited
	rec := env.request(t, http.MethodPost, "/api/v1/pipeline/trigger", map[string]any{"source": "scraper"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestModeRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/mode", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "manual") {
		t.Fatalf("mode get = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPut, "/api/v1/mode", map[string]string{"mode": "automatic"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mode set = %d", rec.Code)
	}
	var cfg model.ModeConfig
	_ = json.Unmarshal(rec.Body.Bytes(), &cfg)
	if cfg.Mode != model.ModeAutomatic || cfg.Version != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}

	rec = env.request(t, http.MethodPut, "/api/v1/mode", map[string]string{"mode": "yolo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode = %d", rec.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.jobs.store["~01abc"] = &model.JobRecord{JobID: "~01abc", Status: model.StatusNew, Title: "Go work"}

	rec := env.request(t, http.MethodGet, "/api/v1/jobs/~01abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/v1/jobs/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job = %d", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/v1/jobs/~01abc/status", map[string]string{"status": "error"})
	if rec.Code != http.StatusOK {
		t.Fatalf("force status = %d", rec.Code)
	}
	rec = env.request(t, http.MethodPost, "/api/v1/jobs/~01abc/status", map[string]string{"status": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid force status = %d", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/v1/jobs/~01abc/reset", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"new"`) {
		t.Fatalf("reset = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodDelete, "/api/v1/jobs/~01abc", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
}

func TestBulkDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.jobs.store["a"] = &model.JobRecord{JobID: "a"}
	env.jobs.store["b"] = &model.JobRecord{JobID: "b"}

	rec := env.request(t, http.MethodDelete, "/api/v1/jobs/", map[string]any{"job_ids": []string{"a", "b", "ghost"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk delete = %d", rec.Code)
	}
	var out map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["deleted"] != 2 {
		t.Fatalf("deleted = %d, want 2", out["deleted"])
	}
}

func TestApprovalEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.approvals.pending = []*model.JobRecord{{JobID: "j1", Status: model.StatusPendingApproval}}

	rec := env.request(t, http.MethodGet, "/api/v1/approvals/pending", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "j1") {
		t.Fatalf("pending = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPut, "/api/v1/jobs/j1/proposal", map[string]string{"proposal_text": "edited"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit = %d", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/v1/jobs/j1/approve", nil)
	if rec.Code != http.StatusOK || env.approvals.Decided["j1"] != "approve" {
		t.Fatalf("approve = %d decided=%v", rec.Code, env.approvals.Decided)
	}

	// approving a job that is not pending maps to 409
	rec = env.request(t, http.MethodPost, "/api/v1/jobs/ghost/approve", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("approve non-pending = %d", rec.Code)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/jobs/j1/submit", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d", rec.Code)
	}

	env.submitter.SubmitErr = domain.ErrTaskInFlight
	rec = env.request(t, http.MethodPost, "/api/v1/jobs/j1/submit", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-flight submit = %d", rec.Code)
	}

	env.submitter.SubmitErr = domain.ErrNotApproved
	rec = env.request(t, http.MethodPost, "/api/v1/jobs/j1/submit", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("unapproved submit = %d", rec.Code)
	}
}

func TestTaskEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.tasks.tasks = []*model.TaskStatus{
		{JobID: "j1", Category: model.TaskCategorySubmission, State: model.TaskInProgress},
		{JobID: "j2", Category: model.TaskCategoryGeneration, State: model.TaskCompleted},
	}

	rec := env.request(t, http.MethodGet, "/api/v1/tasks?category=submission", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "j2") {
		t.Fatal("category filter should exclude generation task")
	}

	rec = env.request(t, http.MethodGet, "/api/v1/tasks/j1/submission", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("task get = %d", rec.Code)
	}
	rec = env.request(t, http.MethodGet, "/api/v1/tasks/j1/generation", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing task = %d", rec.Code)
	}
}

func TestAutoProcess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/api/v1/pipeline/auto-process", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"processed":2`) {
		t.Fatalf("auto-process = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "72.5") {
		t.Fatalf("stats = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"processed_today":3`) {
		t.Fatalf("stats missing processed_today: %s", rec.Body.String())
	}
}

func TestAdminLogs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	logger := zerolog.New(env.logBuf)
	logger.Info().Str("job_id", "j9").Msg("stage committed")

	rec := env.request(t, http.MethodGet, "/api/v1/admin/logs?limit=5", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "stage committed") {
		t.Fatalf("logs = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.server.probes = map[string]HealthProbe{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return context.DeadlineExceeded },
	}

	rec := env.request(t, http.MethodGet, "/api/v1/admin/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy":false`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
