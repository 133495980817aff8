package web

import (
	"context"
	"sync"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/usecase"
)

// --- in-memory mocks for the control-plane dependencies ---

type mockIngest struct {
	mu         sync.Mutex
	runs       map[string]*usecase.RunStatus
	TriggerErr error
	lastParams usecase.TriggerParams
}

func newMockIngest() *mockIngest {
	return &mockIngest{runs: map[string]*usecase.RunStatus{}}
}

func (m *mockIngest) Trigger(ctx context.Context, p usecase.TriggerParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TriggerErr != nil {
		return "", m.TriggerErr
	}
	m.lastParams = p
	id := "run-1"
	m.runs[id] = &usecase.RunStatus{RunID: id, Source: p.Source, Status: "running", StartedAt: time.Now()}
	return id, nil
}

func (m *mockIngest) Process(ctx context.Context, jobIDs []string, opts usecase.ProcessOptions) ([]string, error) {
	if len(jobIDs) == 0 {
		return nil, domain.ErrNoResults
	}
	return jobIDs, nil
}

func (m *mockIngest) Run(ctx context.Context, runID string) (*usecase.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

func (m *mockIngest) Runs(ctx context.Context) ([]*usecase.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*usecase.RunStatus, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

type mockPipeline struct {
	mu        sync.Mutex
	processed []string
	BatchN    int
	ResetErr  error
}

func (m *mockPipeline) ProcessJob(ctx context.Context, jobID string, opts usecase.ProcessOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, jobID)
	return nil
}

func (m *mockPipeline) ProcessBatch(ctx context.Context, limit int) (int, error) {
	return m.BatchN, nil
}

func (m *mockPipeline) ResetToNew(ctx context.Context, jobID string) (*model.JobRecord, error) {
	if m.ResetErr != nil {
		return nil, m.ResetErr
	}
	return &model.JobRecord{JobID: jobID, Status: model.StatusNew, ScoreBypass: true}, nil
}

type mockJobs struct {
	mu    sync.Mutex
	store map[string]*model.JobRecord
}

func newMockJobs(jobs ...*model.JobRecord) *mockJobs {
	m := &mockJobs{store: map[string]*model.JobRecord{}}
	for _, j := range jobs {
		m.store[j.JobID] = j
	}
	return m
}

func (m *mockJobs) List(ctx context.Context, f repository.JobFilter) ([]*model.JobRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.JobRecord
	for _, j := range m.store {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, j)
	}
	return out, len(out), nil
}

func (m *mockJobs) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *mockJobs) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, jobID)
	return nil
}

func (m *mockJobs) ForceStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.JobRecord, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	j.Status = status
	return j, nil
}

type mockApprovals struct {
	mu      sync.Mutex
	pending []*model.JobRecord
	Decided map[string]string // job id -> approve|reject
	EditErr error
}

func newMockApprovals(pending ...*model.JobRecord) *mockApprovals {
	return &mockApprovals{pending: pending, Decided: map[string]string{}}
}

func (m *mockApprovals) Pending(ctx context.Context) ([]*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *mockApprovals) find(jobID string) *model.JobRecord {
	for _, j := range m.pending {
		if j.JobID == jobID {
			return j
		}
	}
	return nil
}

func (m *mockApprovals) Approve(ctx context.Context, jobID string) (*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	if j == nil {
		return nil, domain.ErrInvalidTransition
	}
	m.Decided[jobID] = "approve"
	j.Status = model.StatusApproved
	return j, nil
}

func (m *mockApprovals) Reject(ctx context.Context, jobID string) (*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	if j == nil {
		return nil, domain.ErrInvalidTransition
	}
	m.Decided[jobID] = "reject"
	j.Status = model.StatusRejected
	return j, nil
}

func (m *mockApprovals) EditProposal(ctx context.Context, jobID, text string) (*model.JobRecord, error) {
	if m.EditErr != nil {
		return nil, m.EditErr
	}
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	if j == nil {
		return nil, domain.ErrNotFound
	}
	j.ProposalText = text
	return j, nil
}

type mockSubmitter struct {
	SubmitErr error
	Submitted []string
	mu        sync.Mutex
}

func (m *mockSubmitter) Submit(ctx context.Context, jobID string) (*model.TaskStatus, error) {
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted = append(m.Submitted, jobID)
	return &model.TaskStatus{JobID: jobID, Category: model.TaskCategorySubmission, State: model.TaskPending}, nil
}

func (m *mockSubmitter) SweepStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	return 0, nil
}

type mockStats struct{}

func (mockStats) Overview(ctx context.Context) (*usecase.Stats, error) {
	avg := 72.5
	return &usecase.Stats{
		Total:           3,
		ByStatus:        map[model.JobStatus]int{model.StatusNew: 2, model.StatusSubmitted: 1},
		AverageFitScore: &avg,
		ProcessedToday:  3,
	}, nil
}

type mockModeStore struct {
	mu  sync.Mutex
	cfg model.ModeConfig
}

func (m *mockModeStore) Get(ctx context.Context) (model.ModeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Mode == "" {
		m.cfg.Mode = model.ModeManual
	}
	return m.cfg, nil
}

func (m *mockModeStore) Set(ctx context.Context, mode model.SubmissionMode) (model.ModeConfig, error) {
	if !mode.Valid() {
		return model.ModeConfig{}, domain.ErrUnknownMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = model.ModeConfig{Mode: mode, Version: m.cfg.Version + 1, UpdatedAt: time.Now()}
	return m.cfg, nil
}

type mockTasks struct {
	tasks []*model.TaskStatus
}

func (m *mockTasks) Get(jobID string, cat model.TaskCategory) *model.TaskStatus {
	for _, t := range m.tasks {
		if t.JobID == jobID && t.Category == cat {
			return t
		}
	}
	return nil
}

func (m *mockTasks) Snapshot() []*model.TaskStatus {
	return append([]*model.TaskStatus{}, m.tasks...)
}
