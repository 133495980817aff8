package ai

import (
	"context"
	"time"

	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIService = (*NoopAI)(nil)

// NoopAI returns a canned reply without touching any provider. Used in dev
// mode so the pipeline can run end to end without API keys.
type NoopAI struct {
	reply string
}

func NewNoopAI(reply string) *NoopAI {
	if reply == "" {
		reply = `{"score": 75, "reasoning": "canned reply"}`
	}
	return &NoopAI{reply: reply}
}

func (a *NoopAI) Chat(ctx context.Context, messages []adapter.Message) (string, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return a.reply, nil
}
