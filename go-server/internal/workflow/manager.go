package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
)

// Manager keeps the live page sessions keyed by id
type Manager struct {
	sessions    map[string]*Session
	mutex       sync.RWMutex
	submitter   Submitter
	clock       Clock
	idleTimeout time.Duration
	logger      *zap.Logger
}

func NewManager(submitter Submitter, clock Clock, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		submitter:   submitter,
		clock:       clock,
		idleTimeout: idleTimeout,
		logger:      zap.L().With(zap.String("component", "session_manager")),
	}
}

// Create allocates a new session with a random id
func (m *Manager) Create() *Session {
	session := NewSession(uuid.NewString(), m.submitter, m.clock)

	m.mutex.Lock()
	m.sessions[session.ID()] = session
	count := len(m.sessions)
	m.mutex.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.logger.Debug("Session created", zap.String("session_id", session.ID()))
	return session
}

// Get returns the live session for id and marks it as seen
func (m *Manager) Get(id string) (*Session, bool) {
	m.mutex.RLock()
	session, ok := m.sessions[id]
	m.mutex.RUnlock()

	if !ok {
		return nil, false
	}
	session.touch(m.clock.Now())
	return session, true
}

// Delete closes and forgets a session
func (m *Manager) Delete(id string) {
	m.mutex.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mutex.Unlock()

	if ok {
		session.Close()
		metrics.ActiveSessions.Set(float64(count))
	}
}

func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns how many were removed
func (m *Manager) Sweep() int {
	now := m.clock.Now()

	m.mutex.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.idleSince(now) > m.idleTimeout {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mutex.Unlock()

	for _, session := range expired {
		session.Close()
	}
	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(count))
		m.logger.Debug("Expired idle sessions", zap.Int("removed", len(expired)), zap.Int("active", count))
	}
	return len(expired)
}

// StartSweeper runs Sweep periodically until ctx is done
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close tears down every session
func (m *Manager) Close() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	metrics.ActiveSessions.Set(0)
	m.logger.Info("Closed all sessions", zap.Int("count", len(sessions)))
}
