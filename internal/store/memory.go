package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
)

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.SessionRecord)}
}

// GetSession implements Repository.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// UpsertSession implements Repository.
func (m *MemoryStore) UpsertSession(_ context.Context, rec *domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.SessionID] = *rec
	return nil
}

// DeleteSession implements Repository.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// CleanupExpiredSessions implements Repository.
func (m *MemoryStore) CleanupExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for id, rec := range m.sessions {
		if rec.Expired(ttl, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Ping implements Repository.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Repository.
func (m *MemoryStore) Close() error { return nil }
