package session

import (
	"sync"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// Manager owns the live sessions. It is the only place sessions are
// created and torn down, so watcher cleanup cannot be skipped.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	client ProviderClient
	banks  BankLookup
	opts   Options
	logger logger.Logger
}

// NewManager creates a session manager.
func NewManager(client ProviderClient, banks BankLookup, opts Options, log logger.Logger) *Manager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Manager{
		sessions: make(map[string]*Session),
		client:   client,
		banks:    banks,
		opts:     opts,
		logger:   log,
	}
}

// Create starts a new session and its watchers.
func (m *Manager) Create() *Session {
	s := New(m.client, m.banks, m.opts, m.logger)
	s.Start()

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.logger.Info("Session %s created (%d active)", s.ID, count)
	return s
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, payerr.Expired("unknown or expired session")
	}
	return s, nil
}

// Close tears a session down and stops its watchers.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Stop()
	metrics.ActiveSessions.Set(float64(count))
	m.logger.Info("Session %s closed (%d active)", id, count)
}

// Reap closes every session that has expired due to inactivity.
func (m *Manager) Reap() int {
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.Expired() {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Close(id)
	}
	return len(expired)
}

// CloseAll stops every live session. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	metrics.ActiveSessions.Set(0)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
