package adapter

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIService is the minimal chat capability the scoring and boost-decision
// executors need from a language-model provider.
type AIService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
