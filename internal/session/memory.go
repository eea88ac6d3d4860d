package session

import (
	"context"
	"sync"

	"github.com/bissquit/incident-console/internal/domain"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key string, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[key] = *session
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}
