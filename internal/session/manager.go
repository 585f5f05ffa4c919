package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autosql/autosql/internal/auth"
	"github.com/autosql/autosql/internal/observability"
	"github.com/autosql/autosql/internal/query"
)

type Manager struct {
	factory query.Factory
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions expire after idleTTL without
// activity. A zero idleTTL keeps sessions until logout.
func NewManager(factory query.Factory, idleTTL time.Duration) *Manager {
	return &Manager{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (m *Manager) Create(username string) *Session {
	now := m.now()
	session := &Session{
		Token:     uuid.NewString(),
		Username:  username,
		CreatedAt: now,
		factory:   m.factory,
	}
	session.touch(now)

	m.mu.Lock()
	m.sessions[session.Token] = session
	count := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(count)
	return session
}

// Get returns a live session and records activity on it.
func (m *Manager) Get(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	now := m.now()

	m.mu.Lock()
	session, ok := m.sessions[token]
	if ok && m.expired(session, now) {
		delete(m.sessions, token)
		count := len(m.sessions)
		m.mu.Unlock()
		observability.SetActiveSessions(count)
		_ = session.close()
		return nil, false
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	session.touch(now)
	return session, true
}

func (m *Manager) Validate(_ context.Context, token string) (auth.Identity, bool) {
	session, ok := m.Get(token)
	if !ok {
		return auth.Identity{}, false
	}
	return auth.Identity{Username: session.Username, Token: session.Token}, true
}

// Delete ends a session and closes its engine.
func (m *Manager) Delete(token string) error {
	m.mu.Lock()
	session, ok := m.sessions[token]
	delete(m.sessions, token)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	observability.SetActiveSessions(count)
	return session.close()
}

// Sweep removes expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	expired := make([]*Session, 0)
	for token, session := range m.sessions {
		if m.expired(session, now) {
			expired = append(expired, session)
			delete(m.sessions, token)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, session := range expired {
		_ = session.close()
	}
	if len(expired) > 0 {
		observability.SetActiveSessions(count)
	}
	return len(expired)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if m.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 && logger != nil {
				logger.Info("expired sessions removed", slog.Int("removed", removed))
			}
		}
	}
}

// Close ends every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := session.close(); err != nil {
			errs = append(errs, err)
		}
	}
	observability.SetActiveSessions(0)
	return errors.Join(errs...)
}

func (m *Manager) expired(session *Session, now time.Time) bool {
	return m.idleTTL > 0 && session.idleSince(now) > m.idleTTL
}
