package speech

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
)

// scriptedTTS returns each chunk's leading digit as its "audio" and delays
// completion per digit so assembly order differs from submission order.
type scriptedTTS struct {
	delays map[byte]time.Duration
	calls  atomic.Int64
	fail   func(text string) bool
}

func (s *scriptedTTS) SampleRate() int { return 16000 }

func (s *scriptedTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.calls.Add(1)
	if s.fail != nil && s.fail(text) {
		return nil, fmt.Errorf("scripted failure for %q", text)
	}
	key := text[0]
	if d, ok := s.delays[key]; ok {
		time.Sleep(d)
	}
	return []byte{key}, nil
}

// sentenceStartingWith builds a sentence of exactly length bytes whose
// first byte identifies it.
func sentenceStartingWith(digit byte, length int) string {
	s := string(digit) + " " + strings.Repeat("kata ", (length-2)/5)
	return strings.TrimSpace(s) + "."
}

func TestSynthesizeEndToEnd(t *testing.T) {
	// Four ~87-char sentences; max chunk 100 keeps each in its own chunk
	// (two sentences never fit one chunk together).
	var parts []string
	for _, d := range []byte{'0', '1', '2', '3'} {
		parts = append(parts, sentenceStartingWith(d, 87))
	}
	text := strings.Join(parts, " ")
	if len(text) < 340 || len(text) > 360 {
		t.Fatalf("fixture text length = %d, want ~350", len(text))
	}

	tts := &scriptedTTS{delays: map[byte]time.Duration{
		'2': 0,
		'0': 10 * time.Millisecond,
		'3': 20 * time.Millisecond,
		'1': 30 * time.Millisecond,
	}}
	p := NewPipeline(tts, nil, Config{MaxChunkSize: 100, MaxWorkers: 4}, nil)

	out, err := p.Synthesize(context.Background(), text)
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if out.ChunkCount != 4 {
		t.Fatalf("ChunkCount = %d, want 4", out.ChunkCount)
	}
	if out.FailedChunks != 0 {
		t.Fatalf("FailedChunks = %d, want 0", out.FailedChunks)
	}
	if out.ProcessingTime <= 0 {
		t.Fatalf("ProcessingTime = %v, want > 0", out.ProcessingTime)
	}

	pcm, rate, err := audio.DecodeWAVPCM16LE(out.Audio)
	if err != nil {
		t.Fatalf("output is not valid WAV: %v", err)
	}
	if rate != tts.SampleRate() {
		t.Fatalf("sample rate = %d, want %d", rate, tts.SampleRate())
	}
	if got := string(pcm); got != "0123" {
		t.Fatalf("merged payload = %q, want %q (index order despite completion order 2,0,3,1)", got, "0123")
	}
}

func TestSynthesizeEmptyTextShortCircuits(t *testing.T) {
	tts := &scriptedTTS{}
	p := NewPipeline(tts, nil, Config{}, nil)

	out, err := p.Synthesize(context.Background(), "   \n ")
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if len(out.Audio) != 0 || out.ChunkCount != 0 {
		t.Fatalf("out = %+v, want empty", out)
	}
	if tts.calls.Load() != 0 {
		t.Fatalf("provider called %d times for blank input", tts.calls.Load())
	}
}

func TestSynthesizePartialFailure(t *testing.T) {
	var parts []string
	for _, d := range []byte{'0', '1', '2'} {
		parts = append(parts, sentenceStartingWith(d, 80))
	}
	tts := &scriptedTTS{fail: func(text string) bool { return text[0] == '1' }}
	p := NewPipeline(tts, nil, Config{MaxChunkSize: 90, MaxWorkers: 4}, nil)

	out, err := p.Synthesize(context.Background(), strings.Join(parts, " "))
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if out.FailedChunks != 1 {
		t.Fatalf("FailedChunks = %d, want 1", out.FailedChunks)
	}
	pcm, _, err := audio.DecodeWAVPCM16LE(out.Audio)
	if err != nil {
		t.Fatalf("output is not valid WAV: %v", err)
	}
	if got := string(pcm); got != "02" {
		t.Fatalf("merged payload = %q, want %q", got, "02")
	}
}

func TestSynthesizeTotalFailure(t *testing.T) {
	tts := &scriptedTTS{fail: func(string) bool { return true }}
	p := NewPipeline(tts, nil, Config{MaxChunkSize: 90, MaxWorkers: 2}, nil)

	text := sentenceStartingWith('0', 80) + " " + sentenceStartingWith('1', 80)
	out, err := p.Synthesize(context.Background(), text)
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if len(out.Audio) != 0 {
		t.Fatalf("Audio = %d bytes, want empty on total failure", len(out.Audio))
	}
	if out.FailedChunks != out.ChunkCount {
		t.Fatalf("FailedChunks = %d, ChunkCount = %d, want equal", out.FailedChunks, out.ChunkCount)
	}
}

type scriptedSTT struct {
	byIndex []string
	calls   atomic.Int64
	seen    atomic.Int64
}

func (s *scriptedSTT) Transcribe(_ context.Context, wav []byte, _ string) (string, error) {
	s.calls.Add(1)
	i := int(s.seen.Add(1)) - 1
	if i < len(s.byIndex) {
		return s.byIndex[i], nil
	}
	return "", nil
}

func TestTranscribeTooShortShortCircuits(t *testing.T) {
	stt := &scriptedSTT{}
	p := NewPipeline(nil, stt, Config{MinAudioBytes: 3200}, nil)

	out, err := p.Transcribe(context.Background(), make([]byte, 100), 16000)
	if err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}
	if out.Text != "" || out.WindowCount != 0 {
		t.Fatalf("out = %+v, want empty", out)
	}
	if stt.calls.Load() != 0 {
		t.Fatalf("provider called %d times for too-short audio", stt.calls.Load())
	}
}

func TestTranscribeSingleWindow(t *testing.T) {
	stt := &scriptedSTT{byIndex: []string{"halo dunia"}}
	p := NewPipeline(nil, stt, Config{MaxWorkers: 1}, nil)

	pcm := pcmOfDuration(5*time.Second, 16000)
	out, err := p.Transcribe(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}
	if out.WindowCount != 1 {
		t.Fatalf("WindowCount = %d, want 1", out.WindowCount)
	}
	if out.Text != "halo dunia" {
		t.Fatalf("Text = %q", out.Text)
	}
}

// markedSTT recovers the window index from a marker byte written into the
// PCM, so transcripts line up with windows whatever the completion order.
type markedSTT struct {
	byIndex []string
}

func (s *markedSTT) Transcribe(_ context.Context, wav []byte, _ string) (string, error) {
	pcm, _, err := audio.DecodeWAVPCM16LE(wav)
	if err != nil {
		return "", err
	}
	idx := int(pcm[0])
	if idx >= len(s.byIndex) {
		return "", fmt.Errorf("unexpected window marker %d", idx)
	}
	return s.byIndex[idx], nil
}

func TestTranscribeMergesOverlappingWindows(t *testing.T) {
	stt := &markedSTT{byIndex: []string{
		"saya merasa cemas",
		"cemas setiap malam",
		"malam sebelum tidur",
	}}
	p := NewPipeline(nil, stt, Config{MaxWorkers: 4}, nil)

	// 50s at 16kHz tiers into 20s windows with 500ms overlap: starts at
	// 0s, 19.5s and 39s, i.e. byte offsets 0, 624000 and 1248000.
	pcm := pcmOfDuration(50*time.Second, 16000)
	for i := range pcm {
		pcm[i] = byte(i / 624000)
	}
	out, err := p.Transcribe(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}
	if out.WindowCount != 3 {
		t.Fatalf("WindowCount = %d, want 3", out.WindowCount)
	}
	want := "saya merasa cemas setiap malam sebelum tidur"
	if out.Text != want {
		t.Fatalf("Text = %q, want %q", out.Text, want)
	}
}
