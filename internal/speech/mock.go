package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockProvider is a keyless stand-in for the real speech backends, used in
// tests and when no API key is configured. Synthesis returns a short tone
// of silence per chunk; transcription returns a fixed phrase per window.
type MockProvider struct {
	calls atomic.Int64
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) SampleRate() int { return 16000 }

func (p *MockProvider) Synthesize(_ context.Context, text string) ([]byte, error) {
	p.calls.Add(1)
	if text == "" {
		return nil, fmt.Errorf("mock tts: empty chunk")
	}
	// Roughly 60ms of silence per character keeps durations plausible.
	n := len(text) * 2 * 16 * 60
	return make([]byte, n), nil
}

func (p *MockProvider) Transcribe(_ context.Context, wav []byte, _ string) (string, error) {
	p.calls.Add(1)
	if len(wav) == 0 {
		return "", fmt.Errorf("mock stt: empty window")
	}
	return "simulated voice input", nil
}

// Calls reports how many provider calls were made, for tests asserting
// short-circuit behavior.
func (p *MockProvider) Calls() int64 { return p.calls.Load() }
