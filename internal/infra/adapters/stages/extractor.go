package stages

import (
	"context"
	"time"

	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.StageExecutor = (*ExtractorClient)(nil)

// ExtractorClient calls the browser-automation extractor service, which
// opens the posting page, reads budget and client signals, and downloads
// any attachments it can parse.
type ExtractorClient struct {
	serviceClient
}

func NewExtractorClient(base string, timeout time.Duration) *ExtractorClient {
	return &ExtractorClient{serviceClient: newServiceClient(base, timeout)}
}

func (e *ExtractorClient) Name() string { return "extracting" }

type extractResponse struct {
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	BudgetType        string             `json:"budget_type"`
	BudgetMin         *float64           `json:"budget_min"`
	BudgetMax         *float64           `json:"budget_max"`
	ClientCountry     string             `json:"client_country"`
	ClientSpent       *float64           `json:"client_spent"`
	ClientHires       *int               `json:"client_hires"`
	PaymentVerified   bool               `json:"payment_verified"`
	Attachments       []model.Attachment `json:"attachments"`
	AttachmentContent string             `json:"attachment_content"`
	// Warnings carries per-attachment parse failures; the job still
	// proceeds with whatever was extracted.
	Warnings []string `json:"warnings"`
}

func (e *ExtractorClient) Run(ctx context.Context, job *model.JobRecord) (*adapter.StageUpdate, error) {
	var out extractResponse
	err := e.postJSON(ctx, "/api/v1/extract", map[string]any{
		"job_id": job.JobID,
		"url":    job.URL,
	}, &out)
	if err != nil {
		return nil, classifyHTTPError(e.Name(), err)
	}

	verified := out.PaymentVerified
	return &adapter.StageUpdate{
		Title:             out.Title,
		Description:       out.Description,
		BudgetType:        out.BudgetType,
		BudgetMin:         out.BudgetMin,
		BudgetMax:         out.BudgetMax,
		ClientCountry:     out.ClientCountry,
		ClientSpent:       out.ClientSpent,
		ClientHires:       out.ClientHires,
		PaymentVerified:   &verified,
		Attachments:       out.Attachments,
		AttachmentContent: out.AttachmentContent,
		Notes:             out.Warnings,
	}, nil
}
