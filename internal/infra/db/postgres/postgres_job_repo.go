package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `
job_id, source, status, title, url, description,
attachments, attachment_content,
budget_type, budget_min, budget_max,
client_country, client_spent, client_hires, payment_verified,
fit_score, fit_reasoning,
proposal_doc_url, proposal_text, video_url, pdf_url, cover_letter,
boost_decision, boost_reasoning, pricing_proposed,
approval_ref, score_bypass,
approved_at, submitted_at, error_log,
created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.JobRecord) error {
	if job.JobID == "" {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	attachments, err := json.Marshal(job.Attachments)
	if err != nil {
		return err
	}
	errorLog, err := json.Marshal(job.ErrorLog)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)
ON CONFLICT (job_id) DO UPDATE SET
  status = EXCLUDED.status,
  title = EXCLUDED.title,
  url = EXCLUDED.url,
  description = EXCLUDED.description,
  attachments = EXCLUDED.attachments,
  attachment_content = EXCLUDED.attachment_content,
  budget_type = EXCLUDED.budget_type,
  budget_min = EXCLUDED.budget_min,
  budget_max = EXCLUDED.budget_max,
  client_country = EXCLUDED.client_country,
  client_spent = EXCLUDED.client_spent,
  client_hires = EXCLUDED.client_hires,
  payment_verified = EXCLUDED.payment_verified,
  fit_score = EXCLUDED.fit_score,
  fit_reasoning = EXCLUDED.fit_reasoning,
  proposal_doc_url = EXCLUDED.proposal_doc_url,
  proposal_text = EXCLUDED.proposal_text,
  video_url = EXCLUDED.video_url,
  pdf_url = EXCLUDED.pdf_url,
  cover_letter = EXCLUDED.cover_letter,
  boost_decision = EXCLUDED.boost_decision,
  boost_reasoning = EXCLUDED.boost_reasoning,
  pricing_proposed = EXCLUDED.pricing_proposed,
  approval_ref = EXCLUDED.approval_ref,
  score_bypass = EXCLUDED.score_bypass,
  approved_at = EXCLUDED.approved_at,
  submitted_at = EXCLUDED.submitted_at,
  error_log = EXCLUDED.error_log,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.JobID, job.Source, job.Status, job.Title, job.URL, job.Description,
		attachments, job.AttachmentContent,
		job.BudgetType, job.BudgetMin, job.BudgetMax,
		job.ClientCountry, job.ClientSpent, job.ClientHires, job.PaymentVerified,
		job.FitScore, job.FitReasoning,
		job.ProposalDocURL, job.ProposalText, job.VideoURL, job.PDFURL, job.CoverLetter,
		job.BoostDecision, job.BoostReasoning, job.PricingProposed,
		job.ApprovalRef, job.ScoreBypass,
		job.ApprovedAt, job.SubmittedAt, errorLog,
		job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, jobID string) (*model.JobRecord, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// UpdateStatus persists the full record with a compare-and-set on the
// stored status. A zero row count means either the row vanished or another
// writer moved it first; the two cases are told apart with a follow-up read.
func (r *jobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, job *model.JobRecord, expectedFrom model.JobStatus) error {
	job.UpdatedAt = time.Now()

	attachments, err := json.Marshal(job.Attachments)
	if err != nil {
		return err
	}
	errorLog, err := json.Marshal(job.ErrorLog)
	if err != nil {
		return err
	}

	const q = `
UPDATE jobs SET
  status = $3, title = $4, url = $5, description = $6,
  attachments = $7, attachment_content = $8,
  budget_type = $9, budget_min = $10, budget_max = $11,
  client_country = $12, client_spent = $13, client_hires = $14, payment_verified = $15,
  fit_score = $16, fit_reasoning = $17,
  proposal_doc_url = $18, proposal_text = $19, video_url = $20, pdf_url = $21, cover_letter = $22,
  boost_decision = $23, boost_reasoning = $24, pricing_proposed = $25,
  approval_ref = $26, score_bypass = $27,
  approved_at = $28, submitted_at = $29, error_log = $30,
  updated_at = $31
WHERE job_id = $1 AND status = $2;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.JobID, expectedFrom,
		job.Status, job.Title, job.URL, job.Description,
		attachments, job.AttachmentContent,
		job.BudgetType, job.BudgetMin, job.BudgetMax,
		job.ClientCountry, job.ClientSpent, job.ClientHires, job.PaymentVerified,
		job.FitScore, job.FitReasoning,
		job.ProposalDocURL, job.ProposalText, job.VideoURL, job.PDFURL, job.CoverLetter,
		job.BoostDecision, job.BoostReasoning, job.PricingProposed,
		job.ApprovalRef, job.ScoreBypass,
		job.ApprovedAt, job.SubmittedAt, errorLog,
		job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, job.JobID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus, limit int) ([]*model.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.JobRecord, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}

	var total int
	row, err := pickRow(ctx, r.pool, tx, "SELECT COUNT(*) FROM jobs"+where+";", args...)
	if err != nil {
		return nil, 0, err
	}
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q := "SELECT " + jobColumns + " FROM jobs" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d;", len(args)-1, len(args))

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, jobID string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM jobs WHERE job_id = $1;`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var status model.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *jobRepo) AverageFitScore(ctx context.Context, tx repository.Tx) (*float64, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT AVG(fit_score) FROM jobs WHERE fit_score IS NOT NULL;`)
	if err != nil {
		return nil, err
	}
	var avg *float64
	if err := row.Scan(&avg); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return avg, nil
}

func (r *jobRepo) CountCreatedSince(ctx context.Context, tx repository.Tx, since time.Time) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs WHERE created_at >= $1;`, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *jobRepo) StuckSubmitting(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.JobRecord, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 AND updated_at < $2 ORDER BY updated_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, model.StatusSubmitting, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJob(row pgx.Row) (*model.JobRecord, error) {
	var j model.JobRecord
	var attachments, errorLog []byte
	err := row.Scan(
		&j.JobID, &j.Source, &j.Status, &j.Title, &j.URL, &j.Description,
		&attachments, &j.AttachmentContent,
		&j.BudgetType, &j.BudgetMin, &j.BudgetMax,
		&j.ClientCountry, &j.ClientSpent, &j.ClientHires, &j.PaymentVerified,
		&j.FitScore, &j.FitReasoning,
		&j.ProposalDocURL, &j.ProposalText, &j.VideoURL, &j.PDFURL, &j.CoverLetter,
		&j.BoostDecision, &j.BoostReasoning, &j.PricingProposed,
		&j.ApprovalRef, &j.ScoreBypass,
		&j.ApprovedAt, &j.SubmittedAt, &errorLog,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &j.Attachments); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &j.ErrorLog); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*model.JobRecord, error) {
	var out []*model.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
