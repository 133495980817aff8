package adapter

import (
	"context"

	"freelance-apply-pipeline/internal/domain/model"
)

// StageUpdate is the partial record a stage executor hands back. The
// orchestrator applies it to the stored record and commits; executors never
// touch the Job Record Store themselves.
type StageUpdate struct {
	FitScore     *int
	FitReasoning string

	Title       string
	Description string

	BudgetType string
	BudgetMin  *float64
	BudgetMax  *float64

	ClientCountry   string
	ClientSpent     *float64
	ClientHires     *int
	PaymentVerified *bool

	Attachments       []model.Attachment
	AttachmentContent string

	ProposalDocURL string
	ProposalText   string
	VideoURL       string
	PDFURL         string
	CoverLetter    string

	BoostDecision  *bool
	BoostReasoning string

	// Notes carries partial-data problems (one attachment unparseable and
	// the like) for the job's error log.
	Notes []string
}

// StageExecutor is one discrete processing step applied to a job. Failures
// must be classified via domain.StageError so the orchestrator can pick
// between retry, note-and-continue, and hard stop.
type StageExecutor interface {
	Name() string
	Run(ctx context.Context, job *model.JobRecord) (*StageUpdate, error)
}

// A Reporter receives progress lines from a long-running executor. The
// registry's task handle satisfies this.
type Reporter interface {
	Progress(stage, line string)
}
