package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageText(t *testing.T) {
	raw := []byte(`{"type":"client_text","session_id":"s1","text":"halo","language":"id"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	text, ok := msg.(ClientText)
	if !ok {
		t.Fatalf("message type = %T, want ClientText", msg)
	}
	if text.SessionID != "s1" || text.Text != "halo" || text.Language != "id" {
		t.Fatalf("unexpected client text: %+v", text)
	}
}

func TestParseClientMessageAudio(t *testing.T) {
	raw := []byte(`{"type":"client_audio","session_id":"s1","wav_base64":"AQID"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	audio, ok := msg.(ClientAudio)
	if !ok {
		t.Fatalf("message type = %T, want ClientAudio", msg)
	}
	if audio.SessionID != "s1" || audio.WAVBase64 != "AQID" {
		t.Fatalf("unexpected client audio: %+v", audio)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":"end_session"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != "s1" || control.Action != "end_session" {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidPayloads(t *testing.T) {
	cases := []string{
		`{"type":"client_text","session_id":"s1","text":""}`,
		`{"type":"client_audio","session_id":"s1","wav_base64":""}`,
		`{"type":"client_control","session_id":"","action":""}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("expected validation error for %s", raw)
		}
	}
}
