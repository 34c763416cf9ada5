// Package brain wraps the language-model providers behind a "given text,
// return text" contract, with primary/fallback selection and keyword risk
// screening on user input.
package brain

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn handed to a Generator.
type Message struct {
	Role    string
	Content string
}

// Generator produces the assistant reply for a conversation. The system
// prompt travels per call so personas can differ per session.
type Generator interface {
	Name() string
	Generate(ctx context.Context, systemPrompt string, history []Message) (string, error)
}
