package speech

import (
	"context"
	"strings"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
)

const (
	DefaultMaxChunkSize = 100
	DefaultMaxWorkers   = 8
	DefaultItemTimeout  = 15 * time.Second
	// Recordings below this many bytes cannot plausibly contain speech and
	// are rejected before any provider call.
	DefaultMinAudioBytes = 3200
)

// Config tunes one Pipeline. Zero values fall back to the defaults above.
type Config struct {
	MaxChunkSize  int
	MaxWorkers    int
	ItemTimeout   time.Duration
	MinAudioBytes int
	Language      string
	Segments      SegmentConfig
}

func (c Config) withDefaults() Config {
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = DefaultMinAudioBytes
	}
	return c
}

// SynthesisResult is the outcome of one Synthesize call. Audio is a WAV
// buffer; ChunkCount and ProcessingTime are observability metadata only.
type SynthesisResult struct {
	Audio          []byte
	ChunkCount     int
	FailedChunks   int
	ProcessingTime time.Duration
}

// TranscriptionResult is the outcome of one Transcribe call.
type TranscriptionResult struct {
	Text           string
	WindowCount    int
	FailedWindows  int
	ProcessingTime time.Duration
}

// Pipeline fans text and audio out to bounded pools of provider calls and
// reassembles the results in input order. Each call owns its chunks,
// windows and results for that call only; the pipeline itself is stateless
// and safe for concurrent use.
type Pipeline struct {
	tts     Synthesizer
	stt     Transcriber
	cfg     Config
	metrics *observability.Metrics
}

func NewPipeline(tts Synthesizer, stt Transcriber, cfg Config, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		tts:     tts,
		stt:     stt,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
	}
}

// SynthesizeOpts overrides per-call knobs; callers may request a larger
// pool for longer inputs.
type SynthesizeOpts struct {
	MaxWorkers int
}

// Synthesize converts text into a single WAV buffer. Blank text returns an
// empty result without touching the provider. Individual chunk failures
// are absorbed; only total failure produces an empty Audio, which callers
// treat as "processing failed".
func (p *Pipeline) Synthesize(ctx context.Context, text string, opts ...SynthesizeOpts) (SynthesisResult, error) {
	start := time.Now()

	chunks := SplitText(text, p.cfg.MaxChunkSize)
	if len(chunks) == 0 {
		return SynthesisResult{}, nil
	}

	workers := p.cfg.MaxWorkers
	if len(opts) > 0 && opts[0].MaxWorkers > 0 {
		workers = opts[0].MaxWorkers
	}

	results := Dispatch(ctx, chunks, workers, p.cfg.ItemTimeout, synthesizeOne(p.tts))
	pcm := MergeAudio(results)
	failed := countFailed(results)
	p.observe("tts", len(chunks), failed, time.Since(start))

	out := SynthesisResult{
		ChunkCount:     len(chunks),
		FailedChunks:   failed,
		ProcessingTime: time.Since(start),
	}
	if len(pcm) == 0 {
		// Total failure; empty buffer, caller decides on fallback.
		return out, nil
	}

	wav, err := audio.EncodeWAVPCM16LE(pcm, p.tts.SampleRate())
	if err != nil {
		return out, err
	}
	out.Audio = wav
	return out, nil
}

// Transcribe converts a PCM16LE mono recording into text. Recordings below
// MinAudioBytes are rejected up front as too short to contain speech and
// come back as an empty, zero-cost result.
func (p *Pipeline) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (TranscriptionResult, error) {
	start := time.Now()

	if len(pcm) < p.cfg.MinAudioBytes {
		return TranscriptionResult{}, nil
	}

	windows := SegmentPCM(pcm, sampleRate, p.cfg.Segments)
	if len(windows) == 0 {
		return TranscriptionResult{}, nil
	}

	results := Dispatch(ctx, windows, p.cfg.MaxWorkers, p.cfg.ItemTimeout, transcribeOne(p.stt, p.cfg.Language))
	text := strings.TrimSpace(MergeTranscripts(results))
	failed := countFailed(results)
	p.observe("stt", len(windows), failed, time.Since(start))

	return TranscriptionResult{
		Text:           text,
		WindowCount:    len(windows),
		FailedWindows:  failed,
		ProcessingTime: time.Since(start),
	}, nil
}

func (p *Pipeline) observe(kind string, items, failed int, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.PipelineDispatches.WithLabelValues(kind).Inc()
	p.metrics.ChunksProcessed.WithLabelValues(kind).Add(float64(items))
	if failed > 0 {
		p.metrics.WorkerFailures.WithLabelValues(kind).Add(float64(failed))
	}
	p.metrics.ObservePipelineLatency(kind, d)
}

func countFailed[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
