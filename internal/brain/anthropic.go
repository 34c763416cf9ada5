package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/reliability"
)

const (
	anthropicVersion    = "2023-06-01"
	anthropicMaxRetries = 2
	anthropicRetryBase  = 300 * time.Millisecond
	anthropicRetryCap   = 2 * time.Second
)

// AnthropicConfig configures the fallback generator.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicGenerator is the fallback reply generator, a thin JSON client
// for the Anthropic messages endpoint.
type AnthropicGenerator struct {
	cfg    AnthropicConfig
	client *http.Client
}

func NewAnthropicGenerator(cfg AnthropicConfig) *AnthropicGenerator {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AnthropicGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *AnthropicGenerator) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *AnthropicGenerator) Generate(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	messages := make([]anthropicMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     g.cfg.Model,
		System:    systemPrompt,
		MaxTokens: g.cfg.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= anthropicMaxRetries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, anthropicRetryBase, anthropicRetryCap)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		reply, retryable, err := g.call(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

func (g *AnthropicGenerator) call(ctx context.Context, body []byte) (reply string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("anthropic call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("anthropic read: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", false, fmt.Errorf("anthropic decode (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		retry := reliability.IsRetryableHTTPStatus(resp.StatusCode)
		if parsed.Error != nil {
			retry = retry || reliability.IsRetryableAPIErrorType(parsed.Error.Type)
			return "", retry, fmt.Errorf("anthropic %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", retry, fmt.Errorf("anthropic status %d", resp.StatusCode)
	}

	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	reply = strings.TrimSpace(b.String())
	if reply == "" {
		return "", false, fmt.Errorf("anthropic: blank reply")
	}
	return reply, false, nil
}
