// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.JobRecord
	saveErr   error // used by tests to simulate save failures
	updateErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.JobRecord)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.JobRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()
	cp := *job
	m.store[job.JobID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, jobID string) (*model.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, job *model.JobRecord, expectedFrom model.JobStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[job.JobID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expectedFrom {
		return domain.ErrInvalidTransition
	}
	job.UpdatedAt = time.Now()
	cp := *job
	m.store[job.JobID] = &cp
	return nil
}

func (m *memJobRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus, limit int) ([]*model.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.JobRecord
	for _, j := range m.store {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.JobRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.JobRecord
	for _, j := range m.store {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(j.Title), strings.ToLower(f.Search)) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, jobID)
	return nil
}

func (m *memJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.JobStatus]int)
	for _, j := range m.store {
		out[j.Status]++
	}
	return out, nil
}

func (m *memJobRepo) AverageFitScore(ctx context.Context, tx repository.Tx) (*float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum, n := 0, 0
	for _, j := range m.store {
		if j.FitScore != nil {
			sum += *j.FitScore
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	avg := float64(sum) / float64(n)
	return &avg, nil
}

func (m *memJobRepo) CountCreatedSince(ctx context.Context, tx repository.Tx, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.store {
		if !j.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) StuckSubmitting(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.JobRecord
	for _, j := range m.store {
		if j.Status == model.StatusSubmitting && j.UpdatedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// status reads the stored status directly, bypassing the repository API.
func (m *memJobRepo) status(jobID string) model.JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j, ok := m.store[jobID]; ok {
		return j.Status
	}
	return ""
}

// memProcessedRepo mirrors the append-only dedup ledger.
type memProcessedRepo struct {
	mu    sync.RWMutex
	store map[string]time.Time // key: source|job_id
}

func newMemProcessedRepo() *memProcessedRepo {
	return &memProcessedRepo{store: make(map[string]time.Time)}
}

func dedupKey(source model.JobSource, jobID string) string {
	return string(source) + "|" + jobID
}

func (m *memProcessedRepo) IsProcessed(ctx context.Context, tx repository.Tx, source model.JobSource, jobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[dedupKey(source, jobID)]
	return ok, nil
}

func (m *memProcessedRepo) MarkProcessed(ctx context.Context, tx repository.Tx, source model.JobSource, jobID string, firstSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dedupKey(source, jobID)
	if _, ok := m.store[k]; ok {
		return nil // idempotent
	}
	m.store[k] = firstSeen
	return nil
}

func (m *memProcessedRepo) CountBySource(ctx context.Context, tx repository.Tx) (map[model.JobSource]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.JobSource]int)
	for k := range m.store {
		src := model.JobSource(strings.SplitN(k, "|", 2)[0])
		out[src]++
	}
	return out, nil
}

// memModeStore holds the automation mode in memory.
type memModeStore struct {
	mu      sync.Mutex
	mode    model.SubmissionMode
	version int64
}

func newMemModeStore(mode model.SubmissionMode) *memModeStore {
	return &memModeStore{mode: mode}
}

func (m *memModeStore) Get(ctx context.Context) (model.ModeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.ModeConfig{Mode: m.mode, Version: m.version}, nil
}

func (m *memModeStore) Set(ctx context.Context, mode model.SubmissionMode) (model.ModeConfig, error) {
	if !mode.Valid() {
		return model.ModeConfig{}, domain.ErrUnknownMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.version++
	return model.ModeConfig{Mode: m.mode, Version: m.version, UpdatedAt: time.Now()}, nil
}

// memLocker grants a key to one holder at a time, like the Redis locker
// but without retries.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrJobLocked
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// stubExecutor runs a canned function as a stage.
type stubExecutor struct {
	name  string
	calls int
	fn    func(job *model.JobRecord) (*adapter.StageUpdate, error)
}

func (s *stubExecutor) Name() string { return s.name }

func (s *stubExecutor) Run(ctx context.Context, job *model.JobRecord) (*adapter.StageUpdate, error) {
	s.calls++
	if s.fn == nil {
		return &adapter.StageUpdate{}, nil
	}
	return s.fn(job)
}

func scoringStub(score int) *stubExecutor {
	return &stubExecutor{name: "scoring", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		return &adapter.StageUpdate{FitScore: &score, FitReasoning: "stub"}, nil
	}}
}

func extractingStub() *stubExecutor {
	return &stubExecutor{name: "extracting", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		min, max := 400.0, 800.0
		return &adapter.StageUpdate{BudgetType: "fixed", BudgetMin: &min, BudgetMax: &max}, nil
	}}
}

func generatingStub() *stubExecutor {
	return &stubExecutor{name: "generating", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		return &adapter.StageUpdate{
			ProposalText:   "generated proposal",
			ProposalDocURL: "https://docs.example.com/p/1",
			PDFURL:         "https://files.example.com/p/1.pdf",
		}, nil
	}}
}

func boostStub(decision bool) *stubExecutor {
	return &stubExecutor{name: "boost_decision", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		return &adapter.StageUpdate{BoostDecision: &decision, BoostReasoning: "stub"}, nil
	}}
}

// stubApprovalChannel records requests and returns deterministic refs.
type stubApprovalChannel struct {
	mu       sync.Mutex
	requests []string // job ids in order
	err      error
}

func (s *stubApprovalChannel) RequestApproval(ctx context.Context, job *model.JobRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.requests = append(s.requests, job.JobID)
	return "ref-" + job.JobID, nil
}

// stubSubmitStarter records submit kickoffs.
type stubSubmitStarter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubSubmitStarter) Submit(ctx context.Context, jobID string) (*model.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, jobID)
	return &model.TaskStatus{JobID: jobID, Category: model.TaskCategorySubmission, State: model.TaskPending}, nil
}

func (s *stubSubmitStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubSubmitDriver drives a canned submission.
type stubSubmitDriver struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, job *model.JobRecord, progress adapter.Reporter) (*adapter.SubmitResult, error)
}

func (s *stubSubmitDriver) Submit(ctx context.Context, job *model.JobRecord, progress adapter.Reporter) (*adapter.SubmitResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn == nil {
		return &adapter.SubmitResult{ConfirmationID: "conf-" + job.JobID}, nil
	}
	return s.fn(ctx, job, progress)
}

// stubConnector returns canned candidates.
type stubConnector struct {
	source model.JobSource
	jobs   []*model.JobRecord
	err    error
}

func (s *stubConnector) Source() model.JobSource { return s.source }

func (s *stubConnector) Fetch(ctx context.Context, p adapter.FetchParams) ([]*model.JobRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*model.JobRecord, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}
