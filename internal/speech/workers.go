package speech

import (
	"context"
	"fmt"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
)

// Synthesizer produces headerless PCM16LE audio for one text chunk. The
// returned sample rate is fixed per provider; the pipeline wraps the merged
// PCM in a WAV container once at the end.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
}

// Transcriber turns one WAV-wrapped audio window into text. language is a
// hint (ISO 639-1) and may be empty.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

// synthesizeOne adapts a Synthesizer to the dispatcher's work function.
// Provider failures come back as errors, never as panics or empty-but-ok
// payloads.
func synthesizeOne(tts Synthesizer) WorkFunc[Chunk, []byte] {
	return func(ctx context.Context, _ int, chunk Chunk) ([]byte, error) {
		pcm, err := tts.Synthesize(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("synthesize chunk %d: %w", chunk.Index, err)
		}
		if len(pcm) == 0 {
			return nil, fmt.Errorf("synthesize chunk %d: provider returned no audio", chunk.Index)
		}
		return pcm, nil
	}
}

// transcribeOne adapts a Transcriber to the dispatcher's work function,
// wrapping each raw PCM window in a WAV container for the provider.
func transcribeOne(stt Transcriber, language string) WorkFunc[Window, string] {
	return func(ctx context.Context, _ int, window Window) (string, error) {
		wav, err := audio.EncodeWAVPCM16LE(window.Samples, window.SampleRate)
		if err != nil {
			return "", fmt.Errorf("encode window %d: %w", window.Index, err)
		}
		text, err := stt.Transcribe(ctx, wav, language)
		if err != nil {
			return "", fmt.Errorf("transcribe window %d: %w", window.Index, err)
		}
		return text, nil
	}
}
