// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"
	"time"

	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type Stats struct {
	Total             int                      `json:"total"`
	ByStatus          map[model.JobStatus]int  `json:"by_status"`
	AverageFitScore   *float64                 `json:"average_fit_score,omitempty"`
	ProcessedToday    int                      `json:"processed_today"`
	ProcessedBySource map[model.JobSource]int  `json:"processed_by_source"`
	ActiveTasks       int                      `json:"active_tasks"`
}

type StatsUseCase interface {
	Overview(ctx context.Context) (*Stats, error)
}

// ActiveCounter is the registry's live-task count.
type ActiveCounter interface {
	ActiveCount() int
}

type statsUC struct {
	jobs      repository.JobRepository
	processed repository.ProcessedIDRepository
	active    ActiveCounter
	now       func() time.Time
}

func NewStatsUseCase(jobs repository.JobRepository, processed repository.ProcessedIDRepository, active ActiveCounter) *statsUC {
	return &statsUC{jobs: jobs, processed: processed, active: active, now: time.Now}
}

func (u *statsUC) Overview(ctx context.Context) (*Stats, error) {
	byStatus, err := u.jobs.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	avg, err := u.jobs.AverageFitScore(ctx, nil)
	if err != nil {
		return nil, err
	}
	bySource, err := u.processed.CountBySource(ctx, nil)
	if err != nil {
		return nil, err
	}
	y, m, d := u.now().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	today, err := u.jobs.CountCreatedSince(ctx, nil, midnight)
	if err != nil {
		return nil, err
	}
	s := &Stats{
		Total:             total,
		ByStatus:          byStatus,
		AverageFitScore:   avg,
		ProcessedToday:    today,
		ProcessedBySource: bySource,
	}
	if u.active != nil {
		s.ActiveTasks = u.active.ActiveCount()
	}
	return s, nil
}
