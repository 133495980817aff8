package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/usecase"
)

// PipelineWorker periodically resumes parked jobs through the pipeline
// use case and sweeps submissions stuck past the configured cutoff.
type PipelineWorker struct {
	interval   time.Duration
	sweepEvery time.Duration
	stuckAfter time.Duration
	batchSize  int
	pipeline   usecase.PipelineUseCase
	submitter  usecase.SubmissionUseCase
	log        *zerolog.Logger
}

func NewPipelineWorker(
	interval time.Duration,
	stuckAfter time.Duration,
	batchSize int,
	pipeline usecase.PipelineUseCase,
	submitter usecase.SubmissionUseCase,
	logger *zerolog.Logger,
) *PipelineWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	wlog := logger.With().Str("component", "PipelineWorker").Logger()
	return &PipelineWorker{
		interval:   interval,
		sweepEvery: 10 * interval,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
		pipeline:   pipeline,
		submitter:  submitter,
		log:        &wlog,
	}
}

func (w *PipelineWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting pipeline worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	sweeper := time.NewTicker(w.sweepEvery)
	defer sweeper.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping pipeline worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.pipeline.ProcessBatch(ctx, w.batchSize)
			if err != nil {
				w.log.Error().Err(err).Msg("pipeline batch error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("jobs resumed")
			}
		case <-sweeper.C:
			if w.stuckAfter <= 0 {
				continue
			}
			n, err := w.submitter.SweepStuck(ctx, w.stuckAfter)
			if err != nil {
				w.log.Error().Err(err).Msg("stuck sweep error")
			}
			if n > 0 {
				w.log.Warn().Int("count", n).Msg("stuck submissions failed out")
			}
		}
	}
}
