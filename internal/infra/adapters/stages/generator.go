package stages

import (
	"context"
	"errors"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.StageExecutor = (*GeneratorClient)(nil)

// GeneratorClient calls the asset-generation service, which produces the
// proposal document, pitch video, PDF deck and cover letter for a job.
// Generation can take minutes; the caller runs it as a tracked background
// task.
type GeneratorClient struct {
	serviceClient
}

func NewGeneratorClient(base string, timeout time.Duration) *GeneratorClient {
	return &GeneratorClient{serviceClient: newServiceClient(base, timeout)}
}

func (g *GeneratorClient) Name() string { return "generating" }

type generateResponse struct {
	ProposalDocURL string   `json:"proposal_doc_url"`
	ProposalText   string   `json:"proposal_text"`
	VideoURL       string   `json:"video_url"`
	PDFURL         string   `json:"pdf_url"`
	CoverLetter    string   `json:"cover_letter"`
	Warnings       []string `json:"warnings"`
}

func (g *GeneratorClient) Run(ctx context.Context, job *model.JobRecord) (*adapter.StageUpdate, error) {
	payload := map[string]any{
		"job_id":        job.JobID,
		"title":         job.Title,
		"description":   job.Description,
		"fit_reasoning": job.FitReasoning,
		"budget_type":   job.BudgetType,
	}
	if job.FitScore != nil {
		payload["fit_score"] = *job.FitScore
	}
	if job.PricingProposed != nil {
		payload["pricing_proposed"] = *job.PricingProposed
	}
	if job.AttachmentContent != "" {
		payload["attachment_content"] = job.AttachmentContent
	}

	var out generateResponse
	if err := g.postJSON(ctx, "/api/v1/generate", payload, &out); err != nil {
		return nil, classifyHTTPError(g.Name(), err)
	}
	if out.ProposalText == "" {
		return nil, domain.Fatal(g.Name(), errors.New("generator returned no proposal text"))
	}
	return &adapter.StageUpdate{
		ProposalDocURL: out.ProposalDocURL,
		ProposalText:   out.ProposalText,
		VideoURL:       out.VideoURL,
		PDFURL:         out.PDFURL,
		CoverLetter:    out.CoverLetter,
		Notes:          out.Warnings,
	}, nil
}
