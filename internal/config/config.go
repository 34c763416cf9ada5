package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the therapy assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	SessionJanitorInterval   time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SpeechProvider string

	OpenAIAPIKey    string
	OpenAITTSModel  string
	OpenAITTSVoice  string
	OpenAISTTModel  string
	OpenAIChatModel string

	AnthropicAPIKey string
	AnthropicModel  string

	Language      string
	SystemPrompt  string
	MaxChunkSize  int
	MaxWorkers    int
	ItemTimeout   time.Duration
	MinAudioBytes int

	MaxHistory    int
	TrimHistoryTo int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "therapy"),
		AllowAnyOrigin:   false,
		SpeechProvider:   envOrDefault("SPEECH_PROVIDER", "auto"),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAITTSModel:   envOrDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		OpenAITTSVoice:   envOrDefault("OPENAI_TTS_VOICE", "alloy"),
		OpenAISTTModel:   envOrDefault("OPENAI_STT_MODEL", "whisper-1"),
		OpenAIChatModel:  envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:  stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		Language:         envOrDefault("APP_LANGUAGE", "id"),
		SystemPrompt:     stringsTrimSpace("APP_SYSTEM_PROMPT"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		MaxChunkSize:  100,
		MaxWorkers:    8,
		ItemTimeout:   15 * time.Second,
		MinAudioBytes: 3200,

		MaxHistory:    20,
		TrimHistoryTo: 15,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		SessionJanitorInterval:   30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionJanitorInterval, err = durationFromEnv("APP_SESSION_JANITOR_INTERVAL", cfg.SessionJanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ItemTimeout, err = durationFromEnv("PIPELINE_ITEM_TIMEOUT", cfg.ItemTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxChunkSize, err = intFromEnv("PIPELINE_MAX_CHUNK_SIZE", cfg.MaxChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxWorkers, err = intFromEnv("PIPELINE_MAX_WORKERS", cfg.MaxWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.MinAudioBytes, err = intFromEnv("PIPELINE_MIN_AUDIO_BYTES", cfg.MinAudioBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxHistory, err = intFromEnv("SESSION_MAX_HISTORY", cfg.MaxHistory)
	if err != nil {
		return Config{}, err
	}
	cfg.TrimHistoryTo, err = intFromEnv("SESSION_TRIM_HISTORY_TO", cfg.TrimHistoryTo)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxChunkSize <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_MAX_CHUNK_SIZE must be positive")
	}
	if cfg.MaxWorkers <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_MAX_WORKERS must be positive")
	}
	if cfg.MaxHistory <= 0 {
		return Config{}, fmt.Errorf("SESSION_MAX_HISTORY must be positive")
	}
	if cfg.TrimHistoryTo <= 0 || cfg.TrimHistoryTo > cfg.MaxHistory {
		return Config{}, fmt.Errorf("SESSION_TRIM_HISTORY_TO must be in 1..SESSION_MAX_HISTORY")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
