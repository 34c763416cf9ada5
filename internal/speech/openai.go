package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI speech provider.
type OpenAIConfig struct {
	APIKey   string
	TTSModel string
	TTSVoice string
	STTModel string
}

// OpenAIProvider implements Synthesizer and Transcriber on the OpenAI
// audio endpoints. TTS is requested as headerless 24kHz PCM16 so merged
// chunks concatenate cleanly before container wrapping.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if strings.TrimSpace(cfg.TTSModel) == "" {
		cfg.TTSModel = "gpt-4o-mini-tts"
	}
	if strings.TrimSpace(cfg.TTSVoice) == "" {
		cfg.TTSVoice = string(openai.VoiceAlloy)
	}
	if strings.TrimSpace(cfg.STTModel) == "" {
		cfg.STTModel = string(openai.Whisper1)
	}
	return &OpenAIProvider{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}
}

// SampleRate reports the fixed rate of the provider's PCM output.
func (p *OpenAIProvider) SampleRate() int { return 24000 }

func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(p.cfg.TTSVoice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai tts read: %w", err)
	}
	return pcm, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.cfg.STTModel,
		FilePath: "window.wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
