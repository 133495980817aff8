// File: internal/usecase/submission_uc.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/infra/metrics"
)

// Compile-time checks
var (
	_ SubmissionUseCase = (*submissionUC)(nil)
	_ SubmitStarter     = (*submissionUC)(nil)
)

type SubmissionUseCase interface {
	// Submit starts a background submission for an approved (or
	// previously failed) job and returns the tracked task immediately.
	Submit(ctx context.Context, jobID string) (*model.TaskStatus, error)
	// SweepStuck fails jobs that sat in submitting past the cutoff,
	// normally after a crash mid-submission. Returns how many were swept.
	SweepStuck(ctx context.Context, stuckAfter time.Duration) (int, error)
}

type submissionUC struct {
	jobs    repository.JobRepository
	locker  Locker
	tracker TaskTracker
	driver  adapter.SubmitDriver
	timeout time.Duration
	log     *zerolog.Logger

	wg sync.WaitGroup
}

const stageSubmission = "submission"

func NewSubmissionUseCase(
	jobs repository.JobRepository,
	locker Locker,
	tracker TaskTracker,
	driver adapter.SubmitDriver,
	timeout time.Duration,
	log *zerolog.Logger,
) *submissionUC {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &submissionUC{
		jobs:    jobs,
		locker:  locker,
		tracker: tracker,
		driver:  driver,
		timeout: timeout,
		log:     log,
	}
}

func (u *submissionUC) Submit(ctx context.Context, jobID string) (*model.TaskStatus, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.StatusApproved, model.StatusSubmissionFailed:
		// retryable entry points
	case model.StatusSubmitting:
		return nil, domain.ErrTaskInFlight
	default:
		if job.Status.Terminal() {
			return nil, domain.ErrTerminalStatus
		}
		return nil, domain.ErrNotApproved
	}

	task, err := u.tracker.Begin(jobID, model.TaskCategorySubmission)
	if err != nil {
		return nil, err
	}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		// The hard wall-clock budget lives here, detached from the
		// caller's request context.
		runCtx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()
		u.run(runCtx, jobID)
	}()
	return task, nil
}

func (u *submissionUC) run(ctx context.Context, jobID string) {
	token, err := u.locker.TryLock(ctx, lockKey(jobID), u.timeout+time.Minute)
	if err != nil {
		u.tracker.Fail(jobID, model.TaskCategorySubmission, err.Error())
		return
	}
	defer func() { _ = u.locker.Unlock(context.Background(), lockKey(jobID), token) }()

	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		u.tracker.Fail(jobID, model.TaskCategorySubmission, err.Error())
		return
	}
	from := job.Status
	if from != model.StatusApproved && from != model.StatusSubmissionFailed {
		u.tracker.Fail(jobID, model.TaskCategorySubmission, domain.ErrNotApproved.Error())
		return
	}
	job.Status = model.StatusSubmitting
	if err := u.jobs.UpdateStatus(ctx, nil, job, from); err != nil {
		u.tracker.Fail(jobID, model.TaskCategorySubmission, err.Error())
		return
	}
	metrics.IncTransition(string(from), string(model.StatusSubmitting))

	reporter := &taskReporter{tracker: u.tracker, jobID: jobID}
	start := time.Now()
	res, err := u.driver.Submit(ctx, job, reporter)
	metrics.ObserveSubmission(time.Since(start).Seconds())

	if err != nil {
		outcome := "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		job.AppendError(stageSubmission, err)
		job.Status = model.StatusSubmissionFailed
		// Detached context: the deadline that killed the driver must not
		// also kill the bookkeeping write.
		if uerr := u.jobs.UpdateStatus(context.Background(), nil, job, model.StatusSubmitting); uerr != nil {
			u.log.Error().Err(uerr).Str("job_id", jobID).Msg("failed to record submission failure")
		} else {
			metrics.IncTransition(string(model.StatusSubmitting), string(model.StatusSubmissionFailed))
		}
		metrics.IncSubmission(outcome)
		u.tracker.Fail(jobID, model.TaskCategorySubmission, err.Error())
		u.log.Error().Err(err).Str("job_id", jobID).Str("outcome", outcome).Msg("submission failed")
		return
	}

	now := time.Now()
	job.SubmittedAt = &now
	job.Status = model.StatusSubmitted
	if err := u.jobs.UpdateStatus(ctx, nil, job, model.StatusSubmitting); err != nil {
		u.tracker.Fail(jobID, model.TaskCategorySubmission, err.Error())
		u.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record submission success")
		return
	}
	metrics.IncTransition(string(model.StatusSubmitting), string(model.StatusSubmitted))
	metrics.IncSubmission("submitted")
	u.tracker.Complete(jobID, model.TaskCategorySubmission, map[string]any{
		"confirmation_id": res.ConfirmationID,
		"boosted":         res.Boosted,
		"detail":          res.Detail,
	})
	u.log.Info().Str("job_id", jobID).Str("confirmation_id", res.ConfirmationID).
		Bool("boosted", res.Boosted).Msg("submission completed")
}

func (u *submissionUC) SweepStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	if stuckAfter <= 0 {
		stuckAfter = u.timeout + 5*time.Minute
	}
	stuck, err := u.jobs.StuckSubmitting(ctx, nil, time.Now().Add(-stuckAfter))
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, job := range stuck {
		token, err := u.locker.TryLock(ctx, lockKey(job.JobID), time.Minute)
		if err != nil {
			continue // a live worker may still own it
		}
		job.ErrorLog = append(job.ErrorLog, stageSubmission+": abandoned mid-submission, swept")
		job.Status = model.StatusSubmissionFailed
		if err := u.jobs.UpdateStatus(ctx, nil, job, model.StatusSubmitting); err == nil {
			metrics.IncTransition(string(model.StatusSubmitting), string(model.StatusSubmissionFailed))
			swept++
			u.log.Warn().Str("job_id", job.JobID).Msg("swept stuck submission")
		}
		_ = u.locker.Unlock(ctx, lockKey(job.JobID), token)
	}
	return swept, nil
}

// taskReporter bridges driver progress lines into the registry.
type taskReporter struct {
	tracker TaskTracker
	jobID   string
}

func (r *taskReporter) Progress(stage, line string) {
	r.tracker.Progress(r.jobID, model.TaskCategorySubmission, stage, line)
}
