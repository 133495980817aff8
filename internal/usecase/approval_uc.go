// File: internal/usecase/approval_uc.go
package usecase

import (
	"context"
	"errors"
	"sort"
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
	_ ApprovalUseCase         = (*approvalUC)(nil)
	_ adapter.DecisionHandler = (*approvalUC)(nil)
)

type ApprovalUseCase interface {
	// Pending lists jobs awaiting a decision, best fit first.
	Pending(ctx context.Context) ([]*model.JobRecord, error)
	Approve(ctx context.Context, jobID string) (*model.JobRecord, error)
	Reject(ctx context.Context, jobID string) (*model.JobRecord, error)
	// EditProposal replaces the proposal text while the job is still
	// pending; the edit does not decide the job.
	EditProposal(ctx context.Context, jobID, text string) (*model.JobRecord, error)
}

type approvalUC struct {
	jobs      repository.JobRepository
	modes     repository.ModeStore
	locker    Locker
	submitter SubmitStarter
	log       *zerolog.Logger
}

func NewApprovalUseCase(
	jobs repository.JobRepository,
	modes repository.ModeStore,
	locker Locker,
	submitter SubmitStarter,
	log *zerolog.Logger,
) *approvalUC {
	return &approvalUC{jobs: jobs, modes: modes, locker: locker, submitter: submitter, log: log}
}

func (u *approvalUC) Pending(ctx context.Context) ([]*model.JobRecord, error) {
	jobs, err := u.jobs.ListByStatus(ctx, nil, model.StatusPendingApproval, 200)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return score(jobs[i]) > score(jobs[j])
	})
	return jobs, nil
}

func score(j *model.JobRecord) int {
	if j.FitScore == nil {
		return -1
	}
	return *j.FitScore
}

func (u *approvalUC) Approve(ctx context.Context, jobID string) (*model.JobRecord, error) {
	job, err := u.decide(ctx, jobID, model.StatusApproved)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", jobID).Msg("job approved")

	mode, err := u.modes.Get(ctx)
	if err != nil {
		return job, err
	}
	if mode.Mode.AutoSubmit() {
		if _, err := u.submitter.Submit(ctx, jobID); err != nil && !errors.Is(err, domain.ErrTaskInFlight) {
			u.log.Error().Err(err).Str("job_id", jobID).Msg("auto-submit after approval failed")
		}
	}
	return job, nil
}

func (u *approvalUC) Reject(ctx context.Context, jobID string) (*model.JobRecord, error) {
	job, err := u.decide(ctx, jobID, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", jobID).Msg("job rejected")
	return job, nil
}

func (u *approvalUC) decide(ctx context.Context, jobID string, to model.JobStatus) (*model.JobRecord, error) {
	token, err := u.locker.TryLock(ctx, lockKey(jobID), jobLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), lockKey(jobID), token) }()

	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusPendingApproval {
		if job.Status.Terminal() {
			return nil, domain.ErrTerminalStatus
		}
		return nil, domain.ErrInvalidTransition
	}
	if to == model.StatusApproved {
		now := time.Now()
		job.ApprovedAt = &now
	}
	job.Status = to
	if err := u.jobs.UpdateStatus(ctx, nil, job, model.StatusPendingApproval); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(model.StatusPendingApproval), string(to))
	return job, nil
}

func (u *approvalUC) EditProposal(ctx context.Context, jobID, text string) (*model.JobRecord, error) {
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(jobID), jobLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), lockKey(jobID), token) }()

	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusPendingApproval {
		return nil, domain.ErrInvalidTransition
	}
	job.ProposalText = text
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", jobID).Msg("proposal edited")
	return job, nil
}

// OnDecision correlates a channel callback with its pending job and applies
// the decision. An edit only replaces the proposal text; the job stays in
// pending_approval until an explicit approve or reject.
func (u *approvalUC) OnDecision(ctx context.Context, approvalRef string, decision adapter.Decision, editedText string) error {
	if approvalRef == "" {
		return domain.ErrInvalidArgument
	}
	pending, err := u.jobs.ListByStatus(ctx, nil, model.StatusPendingApproval, 200)
	if err != nil {
		return err
	}
	var job *model.JobRecord
	for _, p := range pending {
		if p.ApprovalRef == approvalRef {
			job = p
			break
		}
	}
	if job == nil {
		return domain.ErrNotFound
	}

	switch decision {
	case adapter.DecisionApprove:
		_, err = u.Approve(ctx, job.JobID)
	case adapter.DecisionEdit:
		_, err = u.EditProposal(ctx, job.JobID, editedText)
	case adapter.DecisionReject:
		_, err = u.Reject(ctx, job.JobID)
	default:
		err = domain.ErrInvalidArgument
	}
	return err
}
