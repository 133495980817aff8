// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// JobUseCase is the read/delete surface over the record store used by the
// control plane. Normal status changes go through the pipeline and approval
// use cases; ForceStatus exists only for operator overrides.
type JobUseCase interface {
	List(ctx context.Context, f repository.JobFilter) ([]*model.JobRecord, int, error)
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
	// Delete removes the record. The dedup entry stays, so the job can
	// never be re-ingested.
	Delete(ctx context.Context, jobID string) error
	// ForceStatus sets any valid status directly, skipping the transition
	// graph. The override is recorded in the job's error log.
	ForceStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.JobRecord, error)
}

type jobUC struct {
	jobs repository.JobRepository
	log  *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, log *zerolog.Logger) *jobUC {
	return &jobUC{jobs: jobs, log: log}
}

func (u *jobUC) List(ctx context.Context, f repository.JobFilter) ([]*model.JobRecord, int, error) {
	return u.jobs.List(ctx, nil, f)
}

func (u *jobUC) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	return u.jobs.FindByID(ctx, nil, jobID)
}

func (u *jobUC) ForceStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.JobRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status)
	}
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == status {
		return job, nil
	}
	from := job.Status
	job.Status = status
	job.ErrorLog = append(job.ErrorLog, fmt.Sprintf("operator override: %s -> %s", from, status))
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	u.log.Warn().Str("job_id", jobID).Str("from", string(from)).Str("to", string(status)).Msg("operator status override")
	metrics.IncTransition(string(from), string(status))
	return job, nil
}

func (u *jobUC) Delete(ctx context.Context, jobID string) error {
	if err := u.jobs.Delete(ctx, nil, jobID); err != nil {
		return err
	}
	u.log.Warn().Str("job_id", jobID).Msg("job record deleted, dedup entry retained")
	return nil
}
