package memory

import (
	"context"
	"sync"

	"github.com/autosql/autosql/internal/auth"
)

// Store keeps credentials for the life of the process.
type Store struct {
	mu    sync.RWMutex
	users map[string]string
}

func NewStore() *Store {
	return &Store{users: map[string]string{}}
}

func (s *Store) Get(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.users[username]
	if !ok {
		return "", auth.ErrUserNotFound
	}
	return hash, nil
}

func (s *Store) Create(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return auth.ErrUserExists
	}
	s.users[username] = passwordHash
	return nil
}
