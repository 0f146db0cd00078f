package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/helper"
)

// Manager owns every live session.
type Manager struct {
	mu       sync.Mutex
	engine   *Engine
	sessions map[string]*Session
}

func NewManager(engine *Engine) *Manager {
	return &Manager{engine: engine, sessions: make(map[string]*Session)}
}

func (m *Manager) New() (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := newSession(id, m.engine)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	log.Debug().Str("session", id).Msg("Session created")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, or a new one when id is unknown.
func (m *Manager) GetOrCreate(id string) (*Session, bool, error) {
	if s, ok := m.Get(id); ok {
		return s, false, nil
	}
	s, err := m.New()
	return s, err == nil, err
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Expire closes and forgets sessions idle for longer than maxIdle and
// returns how many were removed.
func (m *Manager) Expire(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("session", s.ID).Msg("Error closing expired session")
		}
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Msg("Expired idle sessions")
	}
	return len(expired)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
