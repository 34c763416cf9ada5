package therapy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/archive"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/brain"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/session"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/speech"
)

var testMetrics = observability.NewMetrics("therapy_test")

func newTestService(t *testing.T, gen brain.Generator) (*Service, *archive.InMemoryStore) {
	t.Helper()
	store := archive.NewInMemoryStore()
	provider := speech.NewMockProvider()
	pipeline := speech.NewPipeline(provider, provider, speech.Config{}, nil)
	sessions := session.NewManager(time.Minute, 20, 15)
	return NewService(sessions, gen, pipeline, store, testMetrics, ""), store
}

func TestProcessTextRunsFullTurn(t *testing.T) {
	svc, store := newTestService(t, brain.NewMockGenerator())

	turn, err := svc.ProcessText(context.Background(), "", "Akhir-akhir ini saya sulit tidur.", "id")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if turn.SessionID == "" {
		t.Fatalf("turn should carry a session id")
	}
	if turn.Reply == "" {
		t.Fatalf("turn should carry a reply")
	}
	if turn.Risk.Level != brain.AlertGreen {
		t.Fatalf("risk level = %q, want green", turn.Risk.Level)
	}
	if len(turn.Resources) != 0 {
		t.Fatalf("green turn should not carry crisis resources")
	}

	// Both turns end up in the archive shortly after the call returns.
	deadline := time.Now().Add(time.Second)
	for {
		records, _ := store.SessionTranscript(context.Background(), turn.SessionID, 0)
		if len(records) == 2 {
			if records[0].Role != brain.RoleUser || records[1].Role != brain.RoleAssistant {
				t.Fatalf("archive order wrong: %+v", records)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("archive never received both turns, got %d", len(records))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessTextCrisisAttachesResources(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())

	turn, err := svc.ProcessText(context.Background(), "", "saya ingin mengakhiri hidup saya", "id")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if turn.Risk.Level != brain.AlertRed {
		t.Fatalf("risk level = %q, want red", turn.Risk.Level)
	}
	if len(turn.Resources) == 0 {
		t.Fatalf("crisis turn should carry resources")
	}

	spoken := spokenReply(turn)
	if !strings.Contains(spoken, "112") {
		t.Fatalf("spoken crisis reply should include the emergency number, got %q", spoken)
	}
}

func TestProcessTextReusesSession(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())
	ctx := context.Background()

	first, err := svc.ProcessText(ctx, "", "halo", "id")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	second, err := svc.ProcessText(ctx, first.SessionID, "masih di sini", "id")
	if err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("second turn session = %q, want %q", second.SessionID, first.SessionID)
	}
}

func TestProcessTextRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())
	if _, err := svc.ProcessText(context.Background(), "", "   ", "id"); err == nil {
		t.Fatalf("blank message should error")
	}
}

func TestProcessVoiceFullTurn(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())

	// Two seconds of silence at 16 kHz is enough to clear the minimum
	// length gate; the mock transcriber supplies the phrase.
	pcm := make([]byte, 2*16000*2)
	wav, err := audio.EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	turn, err := svc.ProcessVoice(context.Background(), "", wav)
	if err != nil {
		t.Fatalf("ProcessVoice() error = %v", err)
	}
	if !turn.Heard {
		t.Fatalf("turn should be marked heard")
	}
	if turn.Transcript == "" {
		t.Fatalf("turn should carry a transcript")
	}
	if turn.Reply == "" || len(turn.Audio) == 0 {
		t.Fatalf("turn should carry reply text and audio")
	}
	if _, _, err := audio.DecodeWAVPCM16LE(turn.Audio); err != nil {
		t.Fatalf("reply audio is not a valid WAV: %v", err)
	}
}

func TestProcessVoiceUnhearableFallsBack(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())

	// Below the minimum byte gate: treated as inaudible.
	wav, err := audio.EncodeWAVPCM16LE(make([]byte, 100), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	turn, err := svc.ProcessVoice(context.Background(), "", wav)
	if err != nil {
		t.Fatalf("ProcessVoice() error = %v", err)
	}
	if turn.Heard {
		t.Fatalf("inaudible turn should not be marked heard")
	}
	if turn.Reply != unclearReply {
		t.Fatalf("reply = %q, want the unclear fallback", turn.Reply)
	}
	if len(turn.Audio) == 0 {
		t.Fatalf("fallback reply should still be synthesized")
	}
}

func TestProcessVoiceRejectsNonWAV(t *testing.T) {
	svc, _ := newTestService(t, brain.NewMockGenerator())
	if _, err := svc.ProcessVoice(context.Background(), "", []byte("not audio")); err == nil {
		t.Fatalf("non-WAV upload should error")
	}
}
