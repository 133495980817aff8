package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.StageExecutor = (*BoostDecider)(nil)

const boostPrompt = `Analyze this job and decide if boosting the proposal is worth the extra cost.

JOB QUALITY SIGNALS:
- Job Title: %s
- Budget: %s
- Client Total Spent: $%s
- Client Total Hires: %s
- Payment Method Verified: %t
- Client Country: %s
- Fit Score: %s

BOOST DECISION CRITERIA:
1. HIGH-VALUE CLIENT (boost): spent > $10,000 and payment verified.
2. ESTABLISHED CLIENT (consider): spent > $1,000 and at least 3 hires.
3. NEW CLIENT (don't boost): spent < $100 or zero hires.
4. RISKY CLIENT (don't boost): unverified payment, poor spend/hire ratio.

RESPONSE FORMAT (JSON only, no markdown):
{"boost_decision": true/false, "reasoning": "<2-3 sentences explaining decision>"}

Boost costs extra connects; only recommend it for high-probability jobs.`

// BoostDecider asks the model whether the proposal is worth boosting, based
// on client quality signals. It never blocks a job: the orchestrator treats
// its failure as a note, not a stop.
type BoostDecider struct {
	ai adapter.AIService
}

func NewBoostDecider(ai adapter.AIService) *BoostDecider {
	return &BoostDecider{ai: ai}
}

func (b *BoostDecider) Name() string { return "boost" }

func (b *BoostDecider) Run(ctx context.Context, job *model.JobRecord) (*adapter.StageUpdate, error) {
	reply, err := b.ai.Chat(ctx, []adapter.Message{
		{Role: "user", Content: b.prompt(job)},
	})
	if err != nil {
		return nil, classifyAIError(b.Name(), err)
	}

	var out struct {
		BoostDecision bool   `json:"boost_decision"`
		Reasoning     string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(reply)), &out); err != nil {
		return nil, domain.Fatal(b.Name(), errors.New("unparseable boost reply"))
	}
	return &adapter.StageUpdate{
		BoostDecision:  &out.BoostDecision,
		BoostReasoning: out.Reasoning,
	}, nil
}

func (b *BoostDecider) prompt(job *model.JobRecord) string {
	fitScore := "not scored"
	if job.FitScore != nil {
		fitScore = fmt.Sprintf("%d", *job.FitScore)
	}
	return fmt.Sprintf(boostPrompt,
		job.Title,
		formatBudget(job),
		formatFloat(job.ClientSpent),
		formatInt(job.ClientHires),
		job.PaymentVerified,
		job.ClientCountry,
		fitScore,
	)
}
