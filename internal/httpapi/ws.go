package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/brain"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/protocol"
	"github.com/pujahabibi/ai-psychologist-assistant/internal/therapy"
)

const (
	wsReadLimit     = 16 << 20
	wsReadDeadline  = 120 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// handleTherapyWS runs a streaming conversation: text and recorded audio
// come in as typed messages, replies go back as transcript, assistant text,
// assistant audio and risk alert events. A single writer goroutine owns the
// connection writes.
func (s *Server) handleTherapyWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch msg := parsed.(type) {
		case protocol.ClientText:
			turn, err := s.svc.ProcessText(ctx, msg.SessionID, msg.Text, msg.Language)
			if err != nil {
				send(turnError(msg.SessionID, err))
				continue
			}
			s.sendTextTurn(send, turn)
		case protocol.ClientAudio:
			wav, err := base64.StdEncoding.DecodeString(msg.WAVBase64)
			if err != nil {
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: msg.SessionID,
					Code:      "invalid_audio_encoding",
					Retryable: false,
					Detail:    err.Error(),
				})
				continue
			}
			turn, err := s.svc.ProcessVoice(ctx, msg.SessionID, wav)
			if err != nil {
				send(turnError(msg.SessionID, err))
				continue
			}
			send(protocol.Transcript{
				Type:      protocol.TypeTranscript,
				SessionID: turn.SessionID,
				Text:      turn.Transcript,
				Heard:     turn.Heard,
			})
			s.sendTextTurn(send, &turn.TextTurn)
			if len(turn.Audio) > 0 {
				send(protocol.AssistantAudio{
					Type:        protocol.TypeAssistantAudio,
					SessionID:   turn.SessionID,
					Format:      "wav",
					AudioBase64: base64.StdEncoding.EncodeToString(turn.Audio),
				})
			}
		case protocol.ClientControl:
			if strings.EqualFold(msg.Action, "end_session") {
				if _, err := s.sessions.End(msg.SessionID); err == nil {
					s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
					s.metrics.SessionEvents.WithLabelValues("ended").Inc()
					send(protocol.SystemEvent{
						Type:      protocol.TypeSystemEvent,
						SessionID: msg.SessionID,
						Code:      "session_ended",
					})
				}
				break readLoop
			}
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: msg.SessionID,
				Code:      "unknown_action",
				Retryable: false,
				Detail:    msg.Action,
			})
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) sendTextTurn(send func(any) bool, turn *therapy.TextTurn) {
	send(protocol.AssistantText{
		Type:      protocol.TypeAssistantText,
		SessionID: turn.SessionID,
		Text:      turn.Reply,
		Brain:     turn.Brain,
	})
	if turn.Risk.Level != brain.AlertGreen {
		alert := protocol.RiskAlert{
			Type:      protocol.TypeRiskAlert,
			SessionID: turn.SessionID,
			Level:     string(turn.Risk.Level),
			Category:  turn.Risk.Category,
		}
		for _, res := range turn.Resources {
			alert.Resources = append(alert.Resources, protocol.Resource{Name: res.Name, Number: res.Number})
		}
		send(alert)
	}
}

func turnError(sessionID string, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      "turn_failed",
		Retryable: true,
		Detail:    err.Error(),
	}
}

// voiceTurnResponse flattens a voice turn for the REST endpoint, carrying
// the reply audio inline as base64 WAV.
func voiceTurnResponse(turn *therapy.VoiceTurn) map[string]any {
	out := map[string]any{
		"session_id": turn.SessionID,
		"transcript": turn.Transcript,
		"heard":      turn.Heard,
		"reply":      turn.Reply,
		"risk":       turn.Risk,
		"brain":      turn.Brain,
	}
	if len(turn.Resources) > 0 {
		out["resources"] = turn.Resources
	}
	if len(turn.Audio) > 0 {
		out["audio_base64"] = base64.StdEncoding.EncodeToString(turn.Audio)
		out["audio_format"] = "wav"
	}
	return out
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientAudio:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.Transcript:
		return m.Type, true
	case protocol.AssistantText:
		return m.Type, true
	case protocol.AssistantAudio:
		return m.Type, true
	case protocol.RiskAlert:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
