package ai

import (
	"context"

	"github.com/pkoukk/tiktoken-go"

	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIService = (*budgetedAI)(nil)

// budgetedAI trims oversized prompts before they reach the provider. Job
// descriptions and attachment text can be arbitrarily long; instead of
// failing the call we cut the longest message down to fit the input budget.
type budgetedAI struct {
	inner    adapter.AIService
	enc      *tiktoken.Tiktoken
	maxInput int
}

// NewBudgetedAI wraps inner with a token budget counted against the given
// model's encoding. maxInput <= 0 disables trimming.
func NewBudgetedAI(inner adapter.AIService, model string, maxInput int) (adapter.AIService, error) {
	if maxInput <= 0 {
		return inner, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &budgetedAI{inner: inner, enc: enc, maxInput: maxInput}, nil
}

func (b *budgetedAI) Chat(ctx context.Context, messages []adapter.Message) (string, error) {
	return b.inner.Chat(ctx, b.fit(messages))
}

func (b *budgetedAI) fit(messages []adapter.Message) []adapter.Message {
	counts := make([]int, len(messages))
	total := 0
	longest := -1
	for i, m := range messages {
		counts[i] = len(b.enc.Encode(m.Content, nil, nil))
		total += counts[i]
		if longest < 0 || counts[i] > counts[longest] {
			longest = i
		}
	}
	if total <= b.maxInput || longest < 0 {
		return messages
	}

	// Cut the longest message by the overage. Everything else stays intact;
	// prompts are short next to the scraped content they carry.
	keep := counts[longest] - (total - b.maxInput)
	if keep < 0 {
		keep = 0
	}
	tokens := b.enc.Encode(messages[longest].Content, nil, nil)
	trimmed := make([]adapter.Message, len(messages))
	copy(trimmed, messages)
	trimmed[longest].Content = b.enc.Decode(tokens[:keep]) + "\n[content truncated]"
	return trimmed
}
