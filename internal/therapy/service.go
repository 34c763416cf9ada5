package therapy

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/archive"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/audio"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/brain"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/observability"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/policy"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/session"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/speech"
)

const (
	brainTimeout     = 30 * time.Second
	archiveTimeout   = 5 * time.Second
	historyPromptMax = 20
)

// unclearReply is sent when a voice turn produced no usable transcript.
const unclearReply = "Maaf, saya tidak dapat mendengar Anda dengan jelas. Bisakah Anda mengulanginya?"

const defaultSystemPrompt = `Kamu adalah pendamping kesehatan mental yang hangat dan tidak menghakimi.
Dengarkan dengan empati, ajukan pertanyaan terbuka, dan jawab singkat dalam bahasa pengguna.
Kamu bukan pengganti tenaga profesional; sarankan bantuan profesional bila topiknya berat.`

// TextTurn is the outcome of one text exchange.
type TextTurn struct {
	SessionID string                 `json:"session_id"`
	Reply     string                 `json:"reply"`
	Risk      brain.Assessment       `json:"risk"`
	Resources []brain.CrisisResource `json:"resources,omitempty"`
	Brain     string                 `json:"brain"`
}

// VoiceTurn extends TextTurn with the transcript and synthesized reply audio.
type VoiceTurn struct {
	TextTurn
	Transcript string `json:"transcript"`
	Audio      []byte `json:"-"`
	Heard      bool   `json:"heard"`
}

// Service runs therapy turns end to end: risk screening, conversation
// history, language model reply, and for voice turns the speech pipeline
// on both directions.
type Service struct {
	sessions     *session.Manager
	generator    brain.Generator
	risk         *brain.RiskClassifier
	pipeline     *speech.Pipeline
	store        archive.Store
	metrics      *observability.Metrics
	systemPrompt string
}

func NewService(
	sessions *session.Manager,
	generator brain.Generator,
	pipeline *speech.Pipeline,
	store archive.Store,
	metrics *observability.Metrics,
	systemPrompt string,
) *Service {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Service{
		sessions:     sessions,
		generator:    generator,
		risk:         brain.NewRiskClassifier(),
		pipeline:     pipeline,
		store:        store,
		metrics:      metrics,
		systemPrompt: systemPrompt,
	}
}

// ProcessText runs one text turn. A blank session id starts a new session.
func (s *Service) ProcessText(ctx context.Context, sessionID, text, language string) (*TextTurn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}

	start := time.Now()
	sess := s.sessions.GetOrCreate(sessionID, language)

	assessment := s.risk.Assess(text)
	s.metrics.RiskAlerts.WithLabelValues(string(assessment.Level)).Inc()
	if assessment.Level != brain.AlertGreen {
		_ = s.sessions.SetAlertLevel(sess.ID, string(assessment.Level))
		log.Printf("risk alert session=%s level=%s category=%s", sess.ID, assessment.Level, assessment.Category)
	}

	if err := s.sessions.Append(sess.ID, brain.RoleUser, text); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}
	s.archiveBestEffort(archive.TurnRecord{
		SessionID:  sess.ID,
		Role:       brain.RoleUser,
		Content:    text,
		Language:   sess.Language,
		AlertLevel: string(assessment.Level),
	})

	history, err := s.sessions.History(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	brainStart := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, brainTimeout)
	defer cancel()
	reply, err := s.generator.Generate(genCtx, s.promptFor(sess, assessment), toMessages(history))
	s.metrics.Stages.Observe("brain", float64(time.Since(brainStart).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)

	turn := &TextTurn{
		SessionID: sess.ID,
		Reply:     reply,
		Risk:      assessment,
		Brain:     s.generator.Name(),
	}
	if assessment.Crisis() {
		turn.Resources = brain.CrisisResources()
	}

	if err := s.sessions.Append(sess.ID, brain.RoleAssistant, reply); err != nil {
		return nil, fmt.Errorf("record assistant turn: %w", err)
	}
	s.archiveBestEffort(archive.TurnRecord{
		SessionID: sess.ID,
		Role:      brain.RoleAssistant,
		Content:   reply,
		Language:  sess.Language,
	})

	s.metrics.ObserveTurnLatency(time.Since(start))
	return turn, nil
}

// ProcessVoice runs one voice turn: transcribe the WAV upload, run the
// text turn, and synthesize the reply. An inaudible recording short
// circuits to a spoken "could not hear you" reply without touching the
// language model.
func (s *Service) ProcessVoice(ctx context.Context, sessionID string, wav []byte) (*VoiceTurn, error) {
	start := time.Now()

	pcm, sampleRate, err := audio.DecodeWAVPCM16LE(wav)
	if err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}

	transcription, err := s.pipeline.Transcribe(ctx, pcm, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	if transcription.Text == "" {
		sess := s.sessions.GetOrCreate(sessionID, "")
		turn := &VoiceTurn{
			TextTurn: TextTurn{
				SessionID: sess.ID,
				Reply:     unclearReply,
				Risk:      brain.Assessment{Level: brain.AlertGreen},
			},
		}
		synth, err := s.pipeline.Synthesize(ctx, unclearReply)
		if err != nil {
			return nil, fmt.Errorf("synthesize fallback: %w", err)
		}
		turn.Audio = synth.Audio
		return turn, nil
	}

	textTurn, err := s.ProcessText(ctx, sessionID, transcription.Text, "")
	if err != nil {
		return nil, err
	}

	synth, err := s.pipeline.Synthesize(ctx, spokenReply(textTurn))
	if err != nil {
		return nil, fmt.Errorf("synthesize reply: %w", err)
	}

	s.metrics.ObserveTurnLatency(time.Since(start))
	return &VoiceTurn{
		TextTurn:   *textTurn,
		Transcript: transcription.Text,
		Audio:      synth.Audio,
		Heard:      true,
	}, nil
}

// Transcript returns archived turns for a session, newest limit entries in
// chronological order.
func (s *Service) Transcript(ctx context.Context, sessionID string, limit int) ([]archive.TurnRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.SessionTranscript(ctx, sessionID, limit)
}

func (s *Service) promptFor(sess *session.Session, assessment brain.Assessment) string {
	prompt := s.systemPrompt
	if sess.Language != "" {
		prompt += "\nBahasa utama pengguna: " + sess.Language + "."
	}
	if assessment.Crisis() {
		prompt += "\nPengguna mungkin dalam krisis. Tanggapi dengan tenang, validasi perasaannya, dan dorong menghubungi layanan darurat."
	}
	return prompt
}

// spokenReply is what gets synthesized: crisis turns speak the hotline
// numbers too, everything else speaks the reply as-is.
func spokenReply(turn *TextTurn) string {
	if len(turn.Resources) == 0 {
		return turn.Reply
	}
	var b strings.Builder
	b.WriteString(turn.Reply)
	b.WriteString(" Jika Anda dalam bahaya, hubungi: ")
	for i, r := range turn.Resources {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(r.Name)
		b.WriteString(" di ")
		b.WriteString(r.Number)
	}
	b.WriteString(".")
	return b.String()
}

func (s *Service) archiveBestEffort(record archive.TurnRecord) {
	if s.store == nil {
		return
	}
	record.Content, record.Redacted = policy.RedactPII(record.Content)
	go func(r archive.TurnRecord) {
		saveCtx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.store.SaveTurn(saveCtx, r); err != nil {
			s.metrics.SessionEvents.WithLabelValues("archive_save_failed").Inc()
		}
	}(record)
}

func toMessages(history []session.Entry) []brain.Message {
	if len(history) > historyPromptMax {
		history = history[len(history)-historyPromptMax:]
	}
	out := make([]brain.Message, 0, len(history))
	for _, e := range history {
		out = append(out, brain.Message{Role: e.Role, Content: e.Content})
	}
	return out
}
