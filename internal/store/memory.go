package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
)

// MemoryStore is an in-process Repository. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load implements SessionStore.
func (m *MemoryStore) Load(_ context.Context, threadID string) (*domain.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeSession(data)
}

// Save implements SessionStore. The session is stored encoded so later
// mutations by the caller never leak into the store.
func (m *MemoryStore) Save(_ context.Context, session *domain.Session) error {
	data, err := encodeSession(stamped(session))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[session.ThreadID] = data
	m.mu.Unlock()
	return nil
}

// Delete implements Repository.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	delete(m.sessions, threadID)
	m.mu.Unlock()
	return nil
}

// List implements Repository.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// CleanupExpired implements Repository.
func (m *MemoryStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, data := range m.sessions {
		s, err := decodeSession(data)
		if err != nil {
			return deleted, err
		}
		if s.UpdatedAt.Before(threshold) {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping implements Repository.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Repository.
func (m *MemoryStore) Close() error { return nil }
