package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/archive"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/brain"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/config"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/session"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/speech"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/therapy"
)

var testNamespaceSeq atomic.Int64

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		Language:                 "id",
	}
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", testNamespaceSeq.Add(1)))
	sessions := session.NewManager(cfg.SessionInactivityTimeout, 20, 15)
	provider := speech.NewMockProvider()
	pipeline := speech.NewPipeline(provider, provider, speech.Config{}, nil)
	svc := therapy.NewService(sessions, brain.NewMockGenerator(), pipeline, archive.NewInMemoryStore(), metrics, "")
	return New(cfg, sessions, svc, pipeline, metrics)
}

func TestCreateAndEndSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/sessions", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("create session request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	if created["language"] != "id" {
		t.Fatalf("language = %v, want id", created["language"])
	}

	endRes, err := http.Post(ts.URL+"/v1/sessions/"+sessionID+"/end", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("end session request error = %v", err)
	}
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}
}

func TestSessionConsent(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess := srv.sessions.Create("", "id")

	body, _ := json.Marshal(map[string]any{"recording_allowed": true, "data_retention_days": 30})
	res, err := http.Post(ts.URL+"/v1/sessions/"+sess.ID+"/consent", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("consent request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("consent status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var updated session.Session
	if err := json.NewDecoder(res.Body).Decode(&updated); err != nil {
		t.Fatalf("decode consent response: %v", err)
	}
	if updated.Consent == nil || !updated.Consent.RecordingAllowed {
		t.Fatalf("consent not recorded: %+v", updated.Consent)
	}
}

func TestTherapyTextTurn(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"text": "Saya merasa cemas hari ini."})
	res, err := http.Post(ts.URL+"/v1/therapy/text", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("therapy text request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var turn map[string]any
	if err := json.NewDecoder(res.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn["session_id"] == "" || turn["reply"] == "" {
		t.Fatalf("incomplete turn: %+v", turn)
	}
}

func TestTherapyTextRejectsEmpty(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"text": "  "})
	res, err := http.Post(ts.URL+"/v1/therapy/text", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestTherapyVoiceTurn(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wav, err := audio.EncodeWAVPCM16LE(make([]byte, 2*16000*2), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	res, err := http.Post(ts.URL+"/v1/therapy/voice", "audio/wav", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("voice request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var turn map[string]any
	if err := json.NewDecoder(res.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn["heard"] != true {
		t.Fatalf("turn should be heard: %+v", turn)
	}
	if turn["transcript"] == "" || turn["audio_base64"] == "" {
		t.Fatalf("incomplete voice turn: %+v", turn)
	}
}

func TestSpeechTTSReturnsWAV(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"text": "Selamat pagi. Semoga harimu baik."})
	res, err := http.Post(ts.URL+"/v1/speech/tts", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("tts request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q, want audio/wav", ct)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, _, err := audio.DecodeWAVPCM16LE(buf.Bytes()); err != nil {
		t.Fatalf("response is not a valid WAV: %v", err)
	}
}

func TestSpeechSTTTranscribes(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wav, err := audio.EncodeWAVPCM16LE(make([]byte, 2*16000*2), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	res, err := http.Post(ts.URL+"/v1/speech/stt", "audio/wav", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("stt request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	text, _ := payload["text"].(string)
	if strings.TrimSpace(text) == "" {
		t.Fatalf("expected transcript text, got %+v", payload)
	}
}

func TestSpeechSTTRejectsGarbage(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/speech/stt", "audio/wav", strings.NewReader("not a wav"))
	if err != nil {
		t.Fatalf("stt request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestPerfLatencySnapshot(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("perf request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := payload["stages"]; !ok {
		t.Fatalf("missing stages in snapshot: %+v", payload)
	}
}

func TestGetUnknownSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/sessions/nope")
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
