// File: internal/usecase/ingest_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/domain/ports/repository"
	"freelance-apply-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ IngestUseCase = (*ingestUC)(nil)

// RateLimiter caps how often a source may be triggered. Satisfied by the
// Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TaskPool fans per-job pipeline work out to background workers.
// Satisfied by the worker pool. A nil pool processes sequentially.
type TaskPool interface {
	Submit(task func(ctx context.Context) error) error
}

type TriggerParams struct {
	Source          model.JobSource
	Limit           int
	Keywords        []string
	Location        string
	SinceDays       int
	BudgetMin       *float64
	URLs            []string
	RunFullPipeline bool
	MinScore        *int
}

// RunStatus is the public view of one ingestion run.
type RunStatus struct {
	RunID      string          `json:"run_id"`
	Source     model.JobSource `json:"source"`
	Status     string          `json:"status"` // running | completed | failed
	Found      int             `json:"found"`
	New        int             `json:"new"`
	Duplicates int             `json:"duplicates"`
	Processed  int             `json:"processed"`
	Errors     int             `json:"errors"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type IngestUseCase interface {
	// Trigger starts an asynchronous ingestion run and returns its id
	// immediately.
	Trigger(ctx context.Context, p TriggerParams) (string, error)
	// Process re-drives the pipeline for explicit job ids. Returns the ids
	// that were accepted.
	Process(ctx context.Context, jobIDs []string, opts ProcessOptions) ([]string, error)
	// Run returns one run's status, ErrNotFound when unknown or expired.
	Run(ctx context.Context, runID string) (*RunStatus, error)
	// Runs lists tracked runs, newest first.
	Runs(ctx context.Context) ([]*RunStatus, error)
}

type ingestUC struct {
	connectors map[model.JobSource]adapter.Connector
	processed  repository.ProcessedIDRepository
	jobs       repository.JobRepository
	pipeline   PipelineUseCase
	limiter    RateLimiter
	pool       TaskPool
	tm         repository.TransactionManager
	log        *zerolog.Logger

	mu   sync.Mutex
	runs map[string]*RunStatus
	wg   sync.WaitGroup
}

const (
	triggerLimit     = 6 // per source per window
	triggerWindow    = time.Minute
	runRetention     = time.Hour
	defaultFetchSize = 20
)

func NewIngestUseCase(
	connectors []adapter.Connector,
	processed repository.ProcessedIDRepository,
	jobs repository.JobRepository,
	pipeline PipelineUseCase,
	limiter RateLimiter,
	pool TaskPool,
	tm repository.TransactionManager,
	log *zerolog.Logger,
) *ingestUC {
	bySource := make(map[model.JobSource]adapter.Connector, len(connectors))
	for _, c := range connectors {
		bySource[c.Source()] = c
	}
	return &ingestUC{
		connectors: bySource,
		processed:  processed,
		jobs:       jobs,
		pipeline:   pipeline,
		limiter:    limiter,
		pool:       pool,
		tm:         tm,
		log:        log,
		runs:       make(map[string]*RunStatus),
	}
}

func (u *ingestUC) Trigger(ctx context.Context, p TriggerParams) (string, error) {
	conn, ok := u.connectors[p.Source]
	if !ok {
		return "", domain.ErrUnknownSource
	}
	if u.limiter != nil {
		allowed, err := u.limiter.Allow(ctx, "rate_limit:trigger:"+string(p.Source), triggerLimit, triggerWindow)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", domain.ErrRateLimited
		}
	}
	if p.Limit <= 0 {
		p.Limit = defaultFetchSize
	}

	run := &RunStatus{
		RunID:     ulid.Make().String(),
		Source:    p.Source,
		Status:    "running",
		StartedAt: time.Now(),
	}
	u.mu.Lock()
	u.evictRunsLocked()
	u.runs[run.RunID] = run
	u.mu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		// Detached from the caller's request context on purpose.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		u.execute(runCtx, run.RunID, conn, p)
	}()
	return run.RunID, nil
}

func (u *ingestUC) execute(ctx context.Context, runID string, conn adapter.Connector, p TriggerParams) {
	log := u.log.With().Str("run_id", runID).Str("source", string(p.Source)).Logger()

	candidates, err := conn.Fetch(ctx, adapter.FetchParams{
		Limit:     p.Limit,
		Keywords:  p.Keywords,
		Location:  p.Location,
		SinceDays: p.SinceDays,
		BudgetMin: p.BudgetMin,
		URLs:      p.URLs,
	})
	if err != nil {
		u.finishRun(runID, "failed", err)
		metrics.IncRun(string(p.Source), "failed")
		log.Error().Err(err).Msg("ingestion fetch failed")
		return
	}
	u.updateRun(runID, func(r *RunStatus) { r.Found = len(candidates) })

	var admitted []string
	for _, cand := range candidates {
		if cand.JobID == "" {
			u.updateRun(runID, func(r *RunStatus) { r.Errors++ })
			continue
		}
		seen, err := u.processed.IsProcessed(ctx, nil, p.Source, cand.JobID)
		if err != nil {
			u.updateRun(runID, func(r *RunStatus) { r.Errors++ })
			log.Error().Err(err).Str("job_id", cand.JobID).Msg("dedup check failed")
			continue
		}
		if seen {
			metrics.IncDedupSkipped(string(p.Source))
			u.updateRun(runID, func(r *RunStatus) { r.Duplicates++ })
			continue
		}

		cand.Source = p.Source
		cand.Status = model.StatusNew
		if err := u.admit(ctx, p.Source, cand); err != nil {
			u.updateRun(runID, func(r *RunStatus) { r.Errors++ })
			log.Error().Err(err).Str("job_id", cand.JobID).Msg("admit failed")
			continue
		}
		metrics.IncIngested(string(p.Source))
		u.updateRun(runID, func(r *RunStatus) { r.New++ })
		admitted = append(admitted, cand.JobID)
	}

	if p.RunFullPipeline {
		var wg sync.WaitGroup
		for _, id := range admitted {
			id := id
			process := func(ctx context.Context) error {
				err := u.pipeline.ProcessJob(ctx, id, ProcessOptions{MinScore: p.MinScore})
				if err != nil {
					u.updateRun(runID, func(r *RunStatus) { r.Errors++ })
					log.Error().Err(err).Str("job_id", id).Msg("pipeline processing failed")
					return nil
				}
				u.updateRun(runID, func(r *RunStatus) { r.Processed++ })
				return nil
			}
			if u.pool == nil {
				_ = process(ctx)
				continue
			}
			wg.Add(1)
			if err := u.pool.Submit(func(ctx context.Context) error {
				defer wg.Done()
				return process(ctx)
			}); err != nil {
				// saturated pool, fall back to inline processing
				wg.Done()
				_ = process(ctx)
			}
		}
		wg.Wait()
	}

	u.finishRun(runID, "completed", nil)
	metrics.IncRun(string(p.Source), "completed")
	log.Info().Int("found", len(candidates)).Int("new", len(admitted)).Msg("ingestion run completed")
}

// admit persists the record and its dedup mark in one transaction so a
// crash between the two cannot leave a marked job with no record. Without
// a transaction manager the mark is written after the record, so a crash
// in between re-admits rather than silently drops the job.
func (u *ingestUC) admit(ctx context.Context, source model.JobSource, cand *model.JobRecord) error {
	if u.tm == nil {
		if err := u.jobs.Save(ctx, nil, cand); err != nil {
			return err
		}
		return u.processed.MarkProcessed(ctx, nil, source, cand.JobID, time.Now())
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.jobs.Save(ctx, tx, cand); err != nil {
			return err
		}
		return u.processed.MarkProcessed(ctx, tx, source, cand.JobID, time.Now())
	})
}

func (u *ingestUC) Process(ctx context.Context, jobIDs []string, opts ProcessOptions) ([]string, error) {
	var accepted []string
	for _, id := range jobIDs {
		if _, err := u.jobs.FindByID(ctx, nil, id); err != nil {
			continue
		}
		accepted = append(accepted, id)
	}
	if len(accepted) == 0 {
		return nil, domain.ErrNoResults
	}

	u.wg.Add(1)
	go func(ids []string) {
		defer u.wg.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		for _, id := range ids {
			if err := u.pipeline.ProcessJob(runCtx, id, opts); err != nil {
				u.log.Error().Err(err).Str("job_id", id).Msg("process request failed")
			}
		}
	}(accepted)
	return accepted, nil
}

func (u *ingestUC) Run(ctx context.Context, runID string) (*RunStatus, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	r, ok := u.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (u *ingestUC) Runs(ctx context.Context) ([]*RunStatus, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*RunStatus, 0, len(u.runs))
	for _, r := range u.runs {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (u *ingestUC) updateRun(runID string, f func(*RunStatus)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if r, ok := u.runs[runID]; ok {
		f(r)
	}
}

func (u *ingestUC) finishRun(runID, status string, cause error) {
	now := time.Now()
	u.updateRun(runID, func(r *RunStatus) {
		r.Status = status
		r.FinishedAt = &now
		if cause != nil {
			r.Error = cause.Error()
		}
	})
}

func (u *ingestUC) evictRunsLocked() {
	cutoff := time.Now().Add(-runRetention)
	for id, r := range u.runs {
		if r.FinishedAt != nil && r.FinishedAt.Before(cutoff) {
			delete(u.runs, id)
		}
	}
}
