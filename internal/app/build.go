package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/archive"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/brain"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/config"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/httpapi"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/session"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/speech"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/therapy"
)

// ProviderInfo reports which backends were resolved at startup.
type ProviderInfo struct {
	Speech string
	Brain  string
}

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Service   *therapy.Service
	Pipeline  *speech.Pipeline
	Metrics   *observability.Metrics
	Providers ProviderInfo

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive store init failed: %w", err)
	}

	tts, stt, speechName, err := resolveSpeechProviders(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pipeline := speech.NewPipeline(tts, stt, speech.Config{
		MaxChunkSize:  cfg.MaxChunkSize,
		MaxWorkers:    cfg.MaxWorkers,
		ItemTimeout:   cfg.ItemTimeout,
		MinAudioBytes: cfg.MinAudioBytes,
		Language:      cfg.Language,
	}, metrics)

	generator := resolveGenerator(cfg, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout, cfg.MaxHistory, cfg.TrimHistoryTo)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	svc := therapy.NewService(sessions, generator, pipeline, store, metrics, cfg.SystemPrompt)
	api := httpapi.New(cfg, sessions, svc, pipeline, metrics)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Service:  svc,
		Pipeline: pipeline,
		Metrics:  metrics,
		Providers: ProviderInfo{
			Speech: speechName,
			Brain:  generator.Name(),
		},
		Cleanup: store.Close,
	}, nil
}

func resolveSpeechProviders(cfg config.Config) (speech.Synthesizer, speech.Transcriber, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if mode == "" {
		mode = "auto"
	}

	newOpenAI := func() *speech.OpenAIProvider {
		return speech.NewOpenAIProvider(speech.OpenAIConfig{
			APIKey:   cfg.OpenAIAPIKey,
			TTSModel: cfg.OpenAITTSModel,
			TTSVoice: cfg.OpenAITTSVoice,
			STTModel: cfg.OpenAISTTModel,
		})
	}

	switch mode {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil, "", fmt.Errorf("SPEECH_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		p := newOpenAI()
		return p, p, "openai", nil
	case "mock":
		p := speech.NewMockProvider()
		return p, p, "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			p := newOpenAI()
			return p, p, "openai", nil
		}
		p := speech.NewMockProvider()
		return p, p, "mock", nil
	default:
		return nil, nil, "", fmt.Errorf("invalid SPEECH_PROVIDER: %q (expected auto|openai|mock)", cfg.SpeechProvider)
	}
}

func resolveGenerator(cfg config.Config, metrics *observability.Metrics) brain.Generator {
	var primary brain.Generator
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		primary = brain.NewOpenAIGenerator(brain.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIChatModel,
		})
	}

	var fallback brain.Generator
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		fallback = brain.NewAnthropicGenerator(brain.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
	}

	switch {
	case primary != nil && fallback != nil:
		return brain.NewFailoverGenerator(primary, fallback, func() {
			metrics.BrainFallbacks.Inc()
		})
	case primary != nil:
		return primary
	case fallback != nil:
		// Anthropic only: serve it directly, nothing to fail over to.
		return fallback
	default:
		return brain.NewMockGenerator()
	}
}
