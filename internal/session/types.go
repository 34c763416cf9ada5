package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	Language        string    `json:"language"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

// ConsentRequest defines payload for recording session consent.
type ConsentRequest struct {
	RecordingAllowed  bool `json:"recording_allowed"`
	DataRetentionDays int  `json:"data_retention_days"`
}
