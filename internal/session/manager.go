package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager tracks live sessions by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new session for a connected mailbox. userID is the
// grant identifier returned by the OAuth redirect.
func (m *Manager) Create(email, userID string) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Email:     email,
		UserID:    userID,
		CreatedAt: time.Now(),
		phase:     PhaseConnecting,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get returns a session by id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Delete tears down and removes a session. It reports whether the session
// existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Teardown()
	}
	return ok
}

// Shutdown tears down every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
}
