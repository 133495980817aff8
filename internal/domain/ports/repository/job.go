package repository

import (
	"context"
	"time"

	"freelance-apply-pipeline/internal/domain/model"
)

// JobFilter narrows List queries from the control plane.
type JobFilter struct {
	Status model.JobStatus
	Search string
	Offset int
	Limit  int
}

// JobRepository is the port for the Job Record Store. Save is an upsert
// keyed on job_id so a racy double admission collapses into one row.
type JobRepository interface {
	// Save inserts or updates the full record. Insert is idempotent on
	// job_id.
	Save(ctx context.Context, tx Tx, job *model.JobRecord) error
	FindByID(ctx context.Context, tx Tx, jobID string) (*model.JobRecord, error)
	// UpdateStatus commits a status change together with the stage's output
	// payload already written into job. It fails with ErrInvalidTransition
	// when the stored status no longer matches expectedFrom, which makes
	// concurrent advances of the same job safe.
	UpdateStatus(ctx context.Context, tx Tx, job *model.JobRecord, expectedFrom model.JobStatus) error
	// ListByStatus returns jobs in one status, oldest first, for the batch
	// driver.
	ListByStatus(ctx context.Context, tx Tx, status model.JobStatus, limit int) ([]*model.JobRecord, error)
	List(ctx context.Context, tx Tx, f JobFilter) ([]*model.JobRecord, int, error)
	Delete(ctx context.Context, tx Tx, jobID string) error
	// CountByStatus powers the stats endpoint.
	CountByStatus(ctx context.Context, tx Tx) (map[model.JobStatus]int, error)
	AverageFitScore(ctx context.Context, tx Tx) (*float64, error)
	// CountCreatedSince counts records admitted at or after the cutoff,
	// backing the processed-today stat.
	CountCreatedSince(ctx context.Context, tx Tx, since time.Time) (int, error)
	// StuckSubmitting finds jobs that entered submitting before the cutoff
	// and never reached a terminal submission outcome (crash recovery).
	StuckSubmitting(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.JobRecord, error)
}

// ProcessedIDRepository is the port for the Deduplication Store.
// MarkProcessed is idempotent; calling it twice for the same pair is safe.
type ProcessedIDRepository interface {
	IsProcessed(ctx context.Context, tx Tx, source model.JobSource, jobID string) (bool, error)
	MarkProcessed(ctx context.Context, tx Tx, source model.JobSource, jobID string, firstSeen time.Time) error
	CountBySource(ctx context.Context, tx Tx) (map[model.JobSource]int, error)
}

// ModeStore persists the process-wide SubmissionModeConfig. Set bumps the
// version; Get never returns a cached value.
type ModeStore interface {
	Get(ctx context.Context) (model.ModeConfig, error)
	Set(ctx context.Context, mode model.SubmissionMode) (model.ModeConfig, error)
}
