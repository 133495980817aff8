package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
)

var _ repository.ProcessedIDRepository = (*processedIDRepo)(nil)

// processedIDRepo is append-only: rows are inserted once per (source,
// job_id) and never touched again, so re-ingesting a deleted job stays
// impossible.
type processedIDRepo struct {
	pool *pgxpool.Pool
}

func NewProcessedIDRepo(pool *pgxpool.Pool) *processedIDRepo {
	return &processedIDRepo{pool: pool}
}

func (r *processedIDRepo) IsProcessed(ctx context.Context, tx repository.Tx, source model.JobSource, jobID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM processed_ids WHERE source = $1 AND job_id = $2);`
	row, err := pickRow(ctx, r.pool, tx, q, source, jobID)
	if err != nil {
		return false, err
	}
	var seen bool
	if err := row.Scan(&seen); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return seen, nil
}

func (r *processedIDRepo) MarkProcessed(ctx context.Context, tx repository.Tx, source model.JobSource, jobID string, firstSeen time.Time) error {
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}
	const q = `
INSERT INTO processed_ids (source, job_id, first_seen_at)
VALUES ($1, $2, $3)
ON CONFLICT (source, job_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, source, jobID, firstSeen)
	return err
}

func (r *processedIDRepo) CountBySource(ctx context.Context, tx repository.Tx) (map[model.JobSource]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT source, COUNT(*) FROM processed_ids GROUP BY source;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.JobSource]int)
	for rows.Next() {
		var src model.JobSource
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[src] = n
	}
	return out, rows.Err()
}
