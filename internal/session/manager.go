package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Entry is one conversation turn kept in the session history.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Consent records what the user allowed for this session.
type Consent struct {
	RecordingAllowed  bool      `json:"recording_allowed"`
	DataRetentionDays int       `json:"data_retention_days"`
	AcceptedAt        time.Time `json:"accepted_at"`
}

// Session holds one user's conversation. History is bounded: once it
// exceeds the manager's maxHistory the oldest entries are dropped down
// to trimTo so prompt context stays stable over long conversations.
type Session struct {
	ID             string    `json:"session_id"`
	Status         Status    `json:"status"`
	Language       string    `json:"language"`
	History        []Entry   `json:"history"`
	Consent        *Consent  `json:"consent,omitempty"`
	TurnCount      int       `json:"turn_count"`
	LastAlertLevel string    `json:"last_alert_level,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Manager is the in-memory session store. All reads return clones so
// callers never share mutable state with the map.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	maxHistory        int
	trimTo            int
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration, maxHistory, trimTo int) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	if maxHistory <= 0 {
		maxHistory = 20
	}
	if trimTo <= 0 || trimTo > maxHistory {
		trimTo = maxHistory * 3 / 4
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		maxHistory:        maxHistory,
		trimTo:            trimTo,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// GetOrCreate returns the session with the given id, creating a fresh one
// when the id is blank or unknown. Voice callers arrive without a session
// on their first turn.
func (m *Manager) GetOrCreate(sessionID, language string) *Session {
	if sessionID != "" {
		if s, err := m.Get(sessionID); err == nil {
			return s
		}
	}
	return m.Create(sessionID, language)
}

func (m *Manager) Create(sessionID, language string) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if language == "" {
		language = "id"
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             sessionID,
		Status:         StatusActive,
		Language:       language,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Append records a conversation turn and applies the trim policy.
func (m *Manager) Append(sessionID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.History = append(s.History, Entry{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if len(s.History) > m.maxHistory {
		trimmed := make([]Entry, m.trimTo)
		copy(trimmed, s.History[len(s.History)-m.trimTo:])
		s.History = trimmed
	}
	if role == "user" {
		s.TurnCount++
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// History returns a copy of the session's conversation entries.
func (m *Manager) History(sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Entry, len(s.History))
	copy(out, s.History)
	return out, nil
}

func (m *Manager) RecordConsent(sessionID string, consent Consent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if consent.AcceptedAt.IsZero() {
		consent.AcceptedAt = time.Now().UTC()
	}
	s.Consent = &consent
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) SetAlertLevel(sessionID, level string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastAlertLevel = level
	return nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	return out
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	c.History = make([]Entry, len(s.History))
	copy(c.History, s.History)
	if s.Consent != nil {
		cc := *s.Consent
		c.Consent = &cc
	}
	return &c
}
