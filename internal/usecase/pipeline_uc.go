// File: internal/usecase/pipeline_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

// Locker serializes status writes per job across processes. Satisfied by
// the Redis locker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SubmitStarter kicks off a background submission. Satisfied by the
// submission use case; kept narrow so the pipeline never sees its surface.
type SubmitStarter interface {
	Submit(ctx context.Context, jobID string) (*model.TaskStatus, error)
}

// TaskTracker is the slice of the Active-Task Registry the pipeline needs
// to expose generation progress.
type TaskTracker interface {
	Begin(jobID string, cat model.TaskCategory) (*model.TaskStatus, error)
	Progress(jobID string, cat model.TaskCategory, stage, line string)
	Complete(jobID string, cat model.TaskCategory, result map[string]any)
	Fail(jobID string, cat model.TaskCategory, errMsg string)
}

type PipelineUseCase interface {
	// ProcessJob advances one job through every stage it can reach under
	// the current automation mode, then returns. Safe to call for a job in
	// any status; terminal jobs are a no-op.
	ProcessJob(ctx context.Context, jobID string, opts ProcessOptions) error
	// ProcessBatch resumes every job parked in a resumable status, oldest
	// first. Returns how many jobs were touched.
	ProcessBatch(ctx context.Context, limit int) (int, error)
	// ResetToNew is the administrative override: it forces the job back to
	// new with the score gate bypassed, regardless of current status.
	ResetToNew(ctx context.Context, jobID string) (*model.JobRecord, error)
}

type ProcessOptions struct {
	// MinScore overrides the configured score threshold for this run.
	MinScore *int
}

type pipelineUC struct {
	jobs      repository.JobRepository
	modes     repository.ModeStore
	locker    Locker
	tracker   TaskTracker
	submitter SubmitStarter
	approvals adapter.ApprovalChannel

	scorer    adapter.StageExecutor
	extractor adapter.StageExecutor
	generator adapter.StageExecutor
	booster   adapter.StageExecutor

	scoreThreshold int
	log            *zerolog.Logger
}

const (
	jobLockTTL = 10 * time.Minute

	stageScoring    = "scoring"
	stageExtracting = "extracting"
	stageGenerating = "generating"
	stageBoost      = "boost_decision"
	stageApproval   = "approval"
)

// retrySchedule is the backoff between transient-failure attempts. One
// initial attempt plus one retry per entry.
var retrySchedule = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, 30 * time.Second}

func NewPipelineUseCase(
	jobs repository.JobRepository,
	modes repository.ModeStore,
	locker Locker,
	tracker TaskTracker,
	submitter SubmitStarter,
	approvals adapter.ApprovalChannel,
	scorer, extractor, generator, booster adapter.StageExecutor,
	scoreThreshold int,
	log *zerolog.Logger,
) *pipelineUC {
	return &pipelineUC{
		jobs:           jobs,
		modes:          modes,
		locker:         locker,
		tracker:        tracker,
		submitter:      submitter,
		approvals:      approvals,
		scorer:         scorer,
		extractor:      extractor,
		generator:      generator,
		booster:        booster,
		scoreThreshold: scoreThreshold,
		log:            log,
	}
}

func lockKey(jobID string) string { return "pipeline:lock:" + jobID }

func (u *pipelineUC) ProcessJob(ctx context.Context, jobID string, opts ProcessOptions) error {
	token, err := u.locker.TryLock(ctx, lockKey(jobID), jobLockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), lockKey(jobID), token) }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := u.jobs.FindByID(ctx, nil, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return nil
		}

		switch job.Status {
		case model.StatusNew:
			if err := u.commit(ctx, job, model.StatusScoring, model.StatusNew); err != nil {
				return err
			}
		case model.StatusScoring:
			if err := u.runScoring(ctx, job, opts); err != nil {
				return err
			}
		case model.StatusExtracting:
			if err := u.runExtraction(ctx, job); err != nil {
				return err
			}
		case model.StatusGenerating:
			if err := u.runGeneration(ctx, job); err != nil {
				return err
			}
		case model.StatusPendingApproval:
			mode, err := u.modes.Get(ctx)
			if err != nil {
				return err
			}
			if !mode.Mode.AutoApprove() {
				return nil
			}
			now := time.Now()
			job.ApprovedAt = &now
			if err := u.commit(ctx, job, model.StatusApproved, model.StatusPendingApproval); err != nil {
				return err
			}
			u.log.Info().Str("job_id", job.JobID).Str("mode", string(mode.Mode)).Msg("auto-approved")
		case model.StatusApproved:
			mode, err := u.modes.Get(ctx)
			if err != nil {
				return err
			}
			if !mode.Mode.AutoSubmit() {
				return nil
			}
			// Submission runs in its own background task with its own
			// locking; hand off and stop walking this job.
			if _, err := u.submitter.Submit(ctx, job.JobID); err != nil && !errors.Is(err, domain.ErrTaskInFlight) {
				u.log.Error().Err(err).Str("job_id", job.JobID).Msg("auto-submit kickoff failed")
			}
			return nil
		default:
			// submitting / submission_failed belong to the submission agent.
			return nil
		}
	}
}

func (u *pipelineUC) ProcessBatch(ctx context.Context, limit int) (int, error) {
	resumable := []model.JobStatus{
		model.StatusNew, model.StatusScoring, model.StatusExtracting,
		model.StatusGenerating, model.StatusPendingApproval, model.StatusApproved,
	}
	touched := 0
	seen := make(map[string]bool)
	for _, status := range resumable {
		jobs, err := u.jobs.ListByStatus(ctx, nil, status, limit)
		if err != nil {
			return touched, err
		}
		for _, job := range jobs {
			if seen[job.JobID] {
				continue // already driven this pass
			}
			seen[job.JobID] = true
			if err := u.ProcessJob(ctx, job.JobID, ProcessOptions{}); err != nil {
				if errors.Is(err, domain.ErrJobLocked) {
					continue // another worker owns it
				}
				u.log.Error().Err(err).Str("job_id", job.JobID).Msg("batch processing failed")
				continue
			}
			touched++
		}
	}
	return touched, nil
}

func (u *pipelineUC) ResetToNew(ctx context.Context, jobID string) (*model.JobRecord, error) {
	token, err := u.locker.TryLock(ctx, lockKey(jobID), jobLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), lockKey(jobID), token) }()

	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	prev := job.Status
	job.Status = model.StatusNew
	job.ScoreBypass = true
	job.ApprovalRef = ""
	job.ApprovedAt = nil
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(prev), string(model.StatusNew))
	u.log.Warn().Str("job_id", jobID).Str("from", string(prev)).Msg("administrative reset to new")
	return job, nil
}

// commit moves job to the given status with a compare-and-set on from.
func (u *pipelineUC) commit(ctx context.Context, job *model.JobRecord, to, from model.JobStatus) error {
	if !from.CanTransition(to) {
		return domain.ErrInvalidTransition
	}
	job.Status = to
	if err := u.jobs.UpdateStatus(ctx, nil, job, from); err != nil {
		return err
	}
	metrics.IncTransition(string(from), string(to))
	u.log.Debug().Str("job_id", job.JobID).Str("from", string(from)).Str("to", string(to)).Msg("status committed")
	return nil
}

// fail parks the job in the error status, recording the cause.
func (u *pipelineUC) fail(ctx context.Context, job *model.JobRecord, from model.JobStatus, stage string, cause error) error {
	job.AppendError(stage, cause)
	if err := u.commit(ctx, job, model.StatusError, from); err != nil {
		return err
	}
	u.log.Error().Err(cause).Str("job_id", job.JobID).Str("stage", stage).Msg("job moved to error")
	return nil
}

func (u *pipelineUC) runScoring(ctx context.Context, job *model.JobRecord, opts ProcessOptions) error {
	upd, err := u.runStage(ctx, u.scorer, job)
	if err != nil {
		return u.fail(ctx, job, model.StatusScoring, stageScoring, err)
	}
	applyUpdate(job, upd)

	threshold := u.scoreThreshold
	if opts.MinScore != nil {
		threshold = *opts.MinScore
	}
	score := 0
	if job.FitScore != nil {
		score = *job.FitScore
	}
	if job.ScoreBypass {
		// One-shot: the override admits exactly one scoring pass.
		job.ScoreBypass = false
		return u.commit(ctx, job, model.StatusExtracting, model.StatusScoring)
	}
	if score < threshold {
		return u.commit(ctx, job, model.StatusFilteredOut, model.StatusScoring)
	}
	return u.commit(ctx, job, model.StatusExtracting, model.StatusScoring)
}

func (u *pipelineUC) runExtraction(ctx context.Context, job *model.JobRecord) error {
	upd, err := u.runStage(ctx, u.extractor, job)
	if err != nil {
		return u.fail(ctx, job, model.StatusExtracting, stageExtracting, err)
	}
	applyUpdate(job, upd)
	if job.PricingProposed == nil {
		job.PricingProposed = job.ProposedPrice()
	}
	return u.commit(ctx, job, model.StatusGenerating, model.StatusExtracting)
}

func (u *pipelineUC) runGeneration(ctx context.Context, job *model.JobRecord) error {
	if _, err := u.tracker.Begin(job.JobID, model.TaskCategoryGeneration); err != nil {
		if errors.Is(err, domain.ErrTaskInFlight) {
			return nil // another worker is already generating
		}
		return err
	}

	u.tracker.Progress(job.JobID, model.TaskCategoryGeneration, stageGenerating, "generating proposal assets")
	upd, err := u.runStage(ctx, u.generator, job)
	if err != nil {
		u.tracker.Fail(job.JobID, model.TaskCategoryGeneration, err.Error())
		return u.fail(ctx, job, model.StatusGenerating, stageGenerating, err)
	}
	applyUpdate(job, upd)

	// Boost decision is the tail of generation; a failure here is noted
	// but never blocks the proposal.
	if u.booster != nil {
		u.tracker.Progress(job.JobID, model.TaskCategoryGeneration, stageBoost, "deciding boost")
		boostUpd, err := u.runStage(ctx, u.booster, job)
		if err != nil {
			job.AppendError(stageBoost, err)
		} else {
			applyUpdate(job, boostUpd)
			if job.BoostDecision != nil {
				metrics.IncBoost(*job.BoostDecision)
			}
		}
	}

	if err := u.commit(ctx, job, model.StatusPendingApproval, model.StatusGenerating); err != nil {
		u.tracker.Fail(job.JobID, model.TaskCategoryGeneration, err.Error())
		return err
	}
	u.tracker.Complete(job.JobID, model.TaskCategoryGeneration, map[string]any{
		"proposal_doc_url": job.ProposalDocURL,
		"video_url":        job.VideoURL,
		"pdf_url":          job.PDFURL,
	})

	// Post the approval request. The job already sits in pending_approval;
	// a channel outage leaves it reachable through the control plane.
	if u.approvals != nil {
		ref, err := u.approvals.RequestApproval(ctx, job)
		if err != nil {
			job.AppendError(stageApproval, err)
			u.log.Error().Err(err).Str("job_id", job.JobID).Msg("approval request failed")
		} else {
			job.ApprovalRef = ref
		}
		if err := u.jobs.Save(ctx, nil, job); err != nil {
			return err
		}
	}
	return nil
}

// runStage executes one stage with the transient-failure backoff. Partial
// failures surface as notes on the update and do not abort the stage.
func (u *pipelineUC) runStage(ctx context.Context, exec adapter.StageExecutor, job *model.JobRecord) (*adapter.StageUpdate, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retrySchedule); attempt++ {
		start := time.Now()
		upd, err := exec.Run(ctx, job)
		metrics.ObserveStage(exec.Name(), time.Since(start).Seconds(), err == nil)
		if err == nil {
			return upd, nil
		}

		class := domain.ClassOf(err)
		metrics.IncStageError(exec.Name(), class.String())
		switch class {
		case domain.ClassPartial:
			// Usable result with gaps: note it and move on.
			job.AppendError(exec.Name(), err)
			if upd == nil {
				upd = &adapter.StageUpdate{}
			}
			return upd, nil
		case domain.ClassTransient:
			lastErr = err
			if attempt < len(retrySchedule) {
				u.log.Warn().Err(err).Str("job_id", job.JobID).Str("stage", exec.Name()).
					Int("attempt", attempt+1).Msg("transient stage failure, backing off")
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(retrySchedule[attempt]):
				}
			}
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

// applyUpdate folds a stage's partial output into the record.
func applyUpdate(job *model.JobRecord, upd *adapter.StageUpdate) {
	if upd == nil {
		return
	}
	if upd.FitScore != nil {
		job.FitScore = upd.FitScore
	}
	if upd.FitReasoning != "" {
		job.FitReasoning = upd.FitReasoning
	}
	if upd.Title != "" {
		job.Title = upd.Title
	}
	if upd.Description != "" {
		job.Description = upd.Description
	}
	if upd.BudgetType != "" {
		job.BudgetType = upd.BudgetType
	}
	if upd.BudgetMin != nil {
		job.BudgetMin = upd.BudgetMin
	}
	if upd.BudgetMax != nil {
		job.BudgetMax = upd.BudgetMax
	}
	if upd.ClientCountry != "" {
		job.ClientCountry = upd.ClientCountry
	}
	if upd.ClientSpent != nil {
		job.ClientSpent = upd.ClientSpent
	}
	if upd.ClientHires != nil {
		job.ClientHires = upd.ClientHires
	}
	if upd.PaymentVerified != nil {
		job.PaymentVerified = *upd.PaymentVerified
	}
	if len(upd.Attachments) > 0 {
		job.Attachments = upd.Attachments
	}
	if upd.AttachmentContent != "" {
		job.AttachmentContent = upd.AttachmentContent
	}
	if upd.ProposalDocURL != "" {
		job.ProposalDocURL = upd.ProposalDocURL
	}
	if upd.ProposalText != "" {
		job.ProposalText = upd.ProposalText
	}
	if upd.VideoURL != "" {
		job.VideoURL = upd.VideoURL
	}
	if upd.PDFURL != "" {
		job.PDFURL = upd.PDFURL
	}
	if upd.CoverLetter != "" {
		job.CoverLetter = upd.CoverLetter
	}
	if upd.BoostDecision != nil {
		job.BoostDecision = upd.BoostDecision
	}
	if upd.BoostReasoning != "" {
		job.BoostReasoning = upd.BoostReasoning
	}
	for _, note := range upd.Notes {
		job.ErrorLog = append(job.ErrorLog, note)
	}
}
