package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator is a keyless stand-in that echoes a canned supportive
// reply, used in tests and when no provider key is configured.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Name() string { return "mock" }

func (g *MockGenerator) Generate(_ context.Context, _ string, history []Message) (string, error) {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	if strings.TrimSpace(last) == "" {
		return "Saya di sini untuk mendengarkan. Apa yang ingin Anda ceritakan?", nil
	}
	return fmt.Sprintf("Terima kasih sudah bercerita. Saya mendengar Anda mengatakan: %s. Bagaimana perasaan Anda sekarang?", last), nil
}
