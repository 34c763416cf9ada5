package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/config"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/session"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/speech"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/therapy"
)

// maxUploadBytes caps voice uploads; ~3 minutes of 16 kHz PCM16 WAV.
const maxUploadBytes = 12 << 20

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	svc      *therapy.Service
	pipeline *speech.Pipeline
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, svc *therapy.Service, pipeline *speech.Pipeline, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		svc:      svc,
		pipeline: pipeline,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a user's session
				// if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Post("/v1/sessions/{id}/consent", s.handleConsent)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
	r.Get("/v1/sessions/{id}/transcript", s.handleTranscript)

	r.Post("/v1/therapy/text", s.handleTherapyText)
	r.Post("/v1/therapy/voice", s.handleTherapyVoice)
	r.Get("/v1/therapy/ws", s.handleTherapyWS)

	r.Post("/v1/speech/tts", s.handleTTS)
	r.Post("/v1/speech/stt", s.handleSTT)

	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.cfg.Language
	}

	sess := s.sessions.Create(strings.TrimSpace(req.SessionID), req.Language)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Status:          sess.Status,
		Language:        sess.Language,
		CreatedAt:       sess.CreatedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.sessions.List(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var req session.ConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.sessions.RecordConsent(sess.ID, session.Consent{
		RecordingAllowed:  req.RecordingAllowed,
		DataRetentionDays: req.DataRetentionDays,
	}); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	updated, err := s.sessions.Get(sess.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("deleted").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.svc.Transcript(r.Context(), sess.ID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"turns":      records,
	})
}

type textTurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

func (s *Server) handleTherapyText(w http.ResponseWriter, r *http.Request) {
	var req textTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	turn, err := s.svc.ProcessText(r.Context(), req.SessionID, req.Text, req.Language)
	if err != nil {
		respondError(w, http.StatusBadGateway, "turn_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

// handleTherapyVoice accepts a WAV recording, either as a raw audio/wav
// body or as the "audio" field of a multipart form, and returns the turn
// metadata as JSON with the reply audio base64 inline.
func (s *Server) handleTherapyVoice(w http.ResponseWriter, r *http.Request) {
	wav, err := readAudioUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	turn, err := s.svc.ProcessVoice(r.Context(), sessionID, wav)
	if err != nil {
		respondError(w, http.StatusBadGateway, "turn_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, voiceTurnResponse(turn))
}

type ttsRequest struct {
	Text string `json:"text"`
}

// handleTTS synthesizes text straight through the speech pipeline,
// bypassing sessions and the language model.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	result, err := s.pipeline.Synthesize(r.Context(), req.Text)
	if err != nil {
		respondError(w, http.StatusBadGateway, "tts_failed", err.Error())
		return
	}
	if len(result.Audio) == 0 {
		respondError(w, http.StatusBadGateway, "tts_failed", "all chunks failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Chunk-Count", strconv.Itoa(result.ChunkCount))
	w.Header().Set("X-Failed-Chunks", strconv.Itoa(result.FailedChunks))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	wav, err := readAudioUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	pcm, sampleRate, err := audio.DecodeWAVPCM16LE(wav)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}

	result, err := s.pipeline.Transcribe(r.Context(), pcm, sampleRate)
	if err != nil {
		respondError(w, http.StatusBadGateway, "stt_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"text":           result.Text,
		"window_count":   result.WindowCount,
		"failed_windows": result.FailedWindows,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Stages.Snapshot())
}

func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

func readAudioUpload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, errors.New("multipart form needs an audio file field")
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxUploadBytes))
	}

	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty audio body")
	}
	return data, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
