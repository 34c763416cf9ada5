package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientText    MessageType = "client_text"
	TypeClientAudio   MessageType = "client_audio"
	TypeClientControl MessageType = "client_control"

	TypeTranscript     MessageType = "transcript"
	TypeAssistantText  MessageType = "assistant_text"
	TypeAssistantAudio MessageType = "assistant_audio"
	TypeRiskAlert      MessageType = "risk_alert"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientText carries one typed user message.
type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
	Language  string      `json:"language,omitempty"`
}

// ClientAudio carries one complete recorded utterance as a base64 WAV.
type ClientAudio struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	WAVBase64 string      `json:"wav_base64"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// Transcript reports what the server heard in a voice turn.
type Transcript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Heard     bool        `json:"heard"`
}

type AssistantText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Brain     string      `json:"brain,omitempty"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

// RiskAlert is sent alongside the reply when a turn screened above green.
type RiskAlert struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Level     string      `json:"level"`
	Category  string      `json:"category,omitempty"`
	Resources []Resource  `json:"resources,omitempty"`
}

type Resource struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientAudio:
		var msg ClientAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.WAVBase64 == "" {
			return nil, errors.New("invalid client_audio")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
