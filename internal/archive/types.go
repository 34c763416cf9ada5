package archive

import (
	"context"
	"time"
)

// TurnRecord stores a single user or assistant conversational turn.
type TurnRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Language   string    `json:"language"`
	AlertLevel string    `json:"alert_level,omitempty"`
	Redacted   bool      `json:"redacted"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists conversation turns for later review.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	SessionTranscript(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
