// File: internal/usecase/pipeline_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/infra/registry"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type pipelineFixture struct {
	jobs      *memJobRepo
	modes     *memModeStore
	locker    *memLocker
	reg       *registry.Registry
	submitter *stubSubmitStarter
	channel   *stubApprovalChannel
	scorer    *stubExecutor
	extractor *stubExecutor
	generator *stubExecutor
	booster   *stubExecutor
	uc        *pipelineUC
}

func newPipelineFixture(mode model.SubmissionMode) *pipelineFixture {
	f := &pipelineFixture{
		jobs:      newMemJobRepo(),
		modes:     newMemModeStore(mode),
		locker:    newMemLocker(),
		reg:       registry.New(time.Minute, 50),
		submitter: &stubSubmitStarter{},
		channel:   &stubApprovalChannel{},
		scorer:    scoringStub(85),
		extractor: extractingStub(),
		generator: generatingStub(),
		booster:   boostStub(true),
	}
	f.uc = NewPipelineUseCase(
		f.jobs, f.modes, f.locker, f.reg, f.submitter, f.channel,
		f.scorer, f.extractor, f.generator, f.booster,
		70, testLogger(),
	)
	return f
}

func seedJob(t *testing.T, repo *memJobRepo, id string, status model.JobStatus) *model.JobRecord {
	t.Helper()
	job := &model.JobRecord{
		JobID:  id,
		Source: model.SourceScraper,
		Status: status,
		Title:  "Go backend work",
		URL:    "https://example.com/jobs/" + id,
	}
	if err := repo.Save(context.Background(), nil, job); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return job
}

func TestProcessJobManualStopsAtPendingApproval(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", got)
	}

	job, _ := f.jobs.FindByID(context.Background(), nil, "job-1")
	if job.FitScore == nil || *job.FitScore != 85 {
		t.Errorf("FitScore = %v", job.FitScore)
	}
	if job.ProposalText != "generated proposal" {
		t.Errorf("ProposalText = %q", job.ProposalText)
	}
	if job.BoostDecision == nil || !*job.BoostDecision {
		t.Errorf("BoostDecision = %v", job.BoostDecision)
	}
	if job.PricingProposed == nil || *job.PricingProposed != 600 {
		t.Errorf("PricingProposed = %v, want budget midpoint 600", job.PricingProposed)
	}
	if job.ApprovalRef != "ref-job-1" {
		t.Errorf("ApprovalRef = %q", job.ApprovalRef)
	}
	if f.submitter.count() != 0 {
		t.Error("manual mode must not kick submission")
	}
}

func TestProcessJobFiltersLowScore(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	f.scorer = scoringStub(30)
	f.uc.scorer = f.scorer
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusFilteredOut {
		t.Fatalf("status = %s, want filtered_out", got)
	}
	if f.extractor.calls != 0 {
		t.Error("extractor must not run for a filtered job")
	}
}

func TestProcessJobMinScoreOverride(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	f.scorer = scoringStub(50)
	f.uc.scorer = f.scorer
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	min := 40
	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{MinScore: &min}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval with lowered threshold", got)
	}
}

func TestProcessJobScoreBypass(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	f.scorer = scoringStub(10)
	f.uc.scorer = f.scorer
	job := seedJob(t, f.jobs, "job-1", model.StatusNew)
	job.ScoreBypass = true
	if err := f.jobs.Save(context.Background(), nil, job); err != nil {
		t.Fatal(err)
	}

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s, want the gate bypassed", got)
	}
	stored, _ := f.jobs.FindByID(context.Background(), nil, "job-1")
	if stored.ScoreBypass {
		t.Error("bypass flag must be one-shot")
	}
}

func TestProcessJobSemiAutoApproves(t *testing.T) {
	f := newPipelineFixture(model.ModeSemiAuto)
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusApproved {
		t.Fatalf("status = %s, want approved", got)
	}
	job, _ := f.jobs.FindByID(context.Background(), nil, "job-1")
	if job.ApprovedAt == nil {
		t.Error("ApprovedAt not set on auto-approval")
	}
	if f.submitter.count() != 0 {
		t.Error("semi_auto must stop before submission")
	}
}

func TestProcessJobAutomaticKicksSubmission(t *testing.T) {
	f := newPipelineFixture(model.ModeAutomatic)
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusApproved {
		t.Fatalf("status = %s (submission agent owns the rest)", got)
	}
	if f.submitter.count() != 1 {
		t.Fatalf("submit kickoffs = %d, want 1", f.submitter.count())
	}
}

func TestProcessJobModeReadPerDecision(t *testing.T) {
	// The mode is re-read at each gate: flipping it mid-flight applies to
	// the next decision point, not retroactively.
	f := newPipelineFixture(model.ModeManual)
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s", got)
	}

	if _, err := f.modes.Set(context.Background(), model.ModeSemiAuto); err != nil {
		t.Fatal(err)
	}
	// Nothing happens until the job is driven again.
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("mode change alone moved the job to %s", got)
	}
	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusApproved {
		t.Fatalf("status = %s after re-drive under semi_auto", got)
	}
}

func TestRunStageTransientRetry(t *testing.T) {
	saved := retrySchedule
	retrySchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { retrySchedule = saved }()

	f := newPipelineFixture(model.ModeManual)
	attempts := 0
	score := 90
	f.scorer = &stubExecutor{name: "scoring", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		attempts++
		if attempts < 3 {
			return nil, domain.Transient("scoring", errors.New("rate limited"))
		}
		return &adapter.StageUpdate{FitScore: &score}, nil
	}}
	f.uc.scorer = f.scorer
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 2 transient failures then success", attempts)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s", got)
	}
}

func TestRunStageTransientExhaustion(t *testing.T) {
	saved := retrySchedule
	retrySchedule = []time.Duration{time.Millisecond}
	defer func() { retrySchedule = saved }()

	f := newPipelineFixture(model.ModeManual)
	f.scorer = &stubExecutor{name: "scoring", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		return nil, domain.Transient("scoring", errors.New("still down"))
	}}
	f.uc.scorer = f.scorer
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusError {
		t.Fatalf("status = %s, want error after exhausted retries", got)
	}
	job, _ := f.jobs.FindByID(context.Background(), nil, "job-1")
	if len(job.ErrorLog) == 0 {
		t.Error("exhaustion must be recorded in the error log")
	}
}

func TestProcessJobFatalStageError(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	f.extractor = &stubExecutor{name: "extracting", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		return nil, domain.Fatal("extracting", errors.New("auth rejected"))
	}}
	f.uc.extractor = f.extractor
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if f.generator.calls != 0 {
		t.Error("generator must not run after a fatal extraction failure")
	}
}

func TestProcessJobPartialErrorContinues(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	f.extractor = &stubExecutor{name: "extracting", fn: func(job *model.JobRecord) (*adapter.StageUpdate, error) {
		min := 200.0
		return &adapter.StageUpdate{BudgetType: "fixed", BudgetMin: &min},
			domain.Partial("extracting", errors.New("attachment unreadable"))
	}}
	f.uc.extractor = f.extractor
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Fatalf("status = %s, partial failures must not stop the job", got)
	}
	job, _ := f.jobs.FindByID(context.Background(), nil, "job-1")
	if len(job.ErrorLog) == 0 {
		t.Error("partial failure must be noted in the error log")
	}
	if job.PricingProposed == nil || *job.PricingProposed != 200 {
		t.Errorf("PricingProposed = %v, want the single known bound", job.PricingProposed)
	}
}

func TestProcessJobLocked(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	seedJob(t, f.jobs, "job-1", model.StatusNew)

	if _, err := f.locker.TryLock(context.Background(), lockKey("job-1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); !errors.Is(err, domain.ErrJobLocked) {
		t.Fatalf("ProcessJob = %v, want ErrJobLocked", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusNew {
		t.Fatalf("locked job moved to %s", got)
	}
}

func TestProcessJobTerminalNoop(t *testing.T) {
	f := newPipelineFixture(model.ModeAutomatic)
	seedJob(t, f.jobs, "job-1", model.StatusSubmitted)

	if err := f.uc.ProcessJob(context.Background(), "job-1", ProcessOptions{}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if got := f.jobs.status("job-1"); got != model.StatusSubmitted {
		t.Fatalf("terminal job moved to %s", got)
	}
	if f.scorer.calls != 0 {
		t.Error("no stage may run for a terminal job")
	}
}

func TestResetToNew(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	job := seedJob(t, f.jobs, "job-1", model.StatusFilteredOut)
	job.ApprovalRef = "ref-old"
	if err := f.jobs.Save(context.Background(), nil, job); err != nil {
		t.Fatal(err)
	}

	reset, err := f.uc.ResetToNew(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("ResetToNew: %v", err)
	}
	if reset.Status != model.StatusNew || !reset.ScoreBypass {
		t.Fatalf("reset = %s bypass=%v", reset.Status, reset.ScoreBypass)
	}
	if reset.ApprovalRef != "" {
		t.Error("stale approval ref must be cleared")
	}
}

func TestProcessBatchResumesParkedJobs(t *testing.T) {
	f := newPipelineFixture(model.ModeManual)
	seedJob(t, f.jobs, "job-1", model.StatusNew)
	seedJob(t, f.jobs, "job-2", model.StatusExtracting)
	seedJob(t, f.jobs, "job-3", model.StatusSubmitted)

	n, err := f.uc.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("touched = %d, want 2", n)
	}
	if got := f.jobs.status("job-1"); got != model.StatusPendingApproval {
		t.Errorf("job-1 = %s", got)
	}
	if got := f.jobs.status("job-2"); got != model.StatusPendingApproval {
		t.Errorf("job-2 = %s, want resumed from extracting", got)
	}
}
