package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.StageExecutor = (*Scorer)(nil)

const scoringPrompt = `Score this job posting for relevance to the freelancer profile below.

FREELANCER PROFILE:
%s

JOB POSTING:
Title: %s
Description: %s
Budget: %s
Client Info: Spent $%s, %s hires, Payment verified: %t

SCORING CRITERIA:
- Core skill match (0-40 points)
- Project type fit (0-30 points)
- Budget appropriateness (0-15 points)
- Client quality (0-15 points)

RESPONSE FORMAT (JSON only, no markdown):
{"score": <0-100>, "reasoning": "<2-3 sentences explaining the score>"}

Be strict: only high scores for genuinely good matches.`

// Scorer runs the relevance model over a posting and hands back a 0-100 fit
// score plus reasoning. The profile text is static per deployment.
type Scorer struct {
	ai      adapter.AIService
	profile string
}

func NewScorer(ai adapter.AIService, profile string) *Scorer {
	return &Scorer{ai: ai, profile: profile}
}

func (s *Scorer) Name() string { return "scoring" }

func (s *Scorer) Run(ctx context.Context, job *model.JobRecord) (*adapter.StageUpdate, error) {
	reply, err := s.ai.Chat(ctx, []adapter.Message{
		{Role: "user", Content: s.prompt(job)},
	})
	if err != nil {
		return nil, classifyAIError(s.Name(), err)
	}

	score, reasoning, err := parseScoreReply(reply)
	if err != nil {
		return nil, domain.Fatal(s.Name(), err)
	}
	return &adapter.StageUpdate{FitScore: &score, FitReasoning: reasoning}, nil
}

func (s *Scorer) prompt(job *model.JobRecord) string {
	desc := job.Description
	if len(desc) > 2000 {
		desc = desc[:2000]
	}
	return fmt.Sprintf(scoringPrompt,
		s.profile,
		job.Title,
		desc,
		formatBudget(job),
		formatFloat(job.ClientSpent),
		formatInt(job.ClientHires),
		job.PaymentVerified,
	)
}

var scorePattern = regexp.MustCompile(`"?score"?\s*[:=]\s*(\d+)`)

// parseScoreReply expects {"score": n, "reasoning": "..."} but falls back to
// a regex scan when the model wraps the JSON in prose or fences.
func parseScoreReply(reply string) (int, string, error) {
	text := stripFences(reply)

	var out struct {
		Score     int    `json:"score"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return clampScore(out.Score), out.Reasoning, nil
	}

	if m := scorePattern.FindStringSubmatch(reply); m != nil {
		n, _ := strconv.Atoi(m[1])
		snippet := reply
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return clampScore(n), "extracted from response: " + snippet, nil
	}
	return 0, "", errors.New("unparseable score reply")
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func formatBudget(job *model.JobRecord) string {
	switch job.BudgetType {
	case "fixed":
		if job.BudgetMax != nil {
			return fmt.Sprintf("Fixed price: $%.0f", *job.BudgetMax)
		}
		if job.BudgetMin != nil {
			return fmt.Sprintf("Fixed price: $%.0f", *job.BudgetMin)
		}
		return "Fixed price: not specified"
	case "hourly":
		if job.BudgetMin != nil && job.BudgetMax != nil {
			return fmt.Sprintf("Hourly: $%.0f-$%.0f/hr", *job.BudgetMin, *job.BudgetMax)
		}
		return "Hourly: not specified"
	default:
		return "Not specified"
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatFloat(*v, 'f', 0, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(*v)
}

// classifyAIError maps provider failures onto the retry policy: rate limits
// and timeouts get retried, everything else stops the job.
func classifyAIError(stage string, err error) error {
	var ne net.Error
	if errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return domain.Transient(stage, err)
	}
	return domain.Fatal(stage, err)
}
