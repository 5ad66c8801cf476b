package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/store"
)

// Manager owns the live sessions and writes snapshots through to the store.
type Manager struct {
	repo          store.Repository
	instruction   string
	searchDefault bool
	logger        *slog.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	endpoints []domain.Endpoint
}

// Option configures a Manager.
type Option func(*Manager)

// WithSearchDefault sets the search flag of new sessions.
func WithSearchDefault(on bool) Option {
	return func(m *Manager) { m.searchDefault = on }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager. New sessions are seeded with instruction and
// a snapshot of endpoints.
func NewManager(repo store.Repository, instruction string, endpoints []domain.Endpoint, opts ...Option) *Manager {
	if repo == nil {
		repo = store.NewMemory()
	}
	m := &Manager{
		repo:        repo,
		instruction: instruction,
		logger:      slog.Default(),
		sessions:    make(map[string]*Session),
		endpoints:   append([]domain.Endpoint(nil), endpoints...),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the live session for id, restoring it from the store or
// creating it when needed. An empty id always creates a new session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		m.mu.Lock()
		s, ok := m.sessions[id]
		m.mu.Unlock()
		if ok {
			return s, nil
		}
	}

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.ID()]; ok {
		return existing, nil
	}
	m.sessions[s.ID()] = s
	return s, nil
}

func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	endpoints := m.Endpoints()
	if id != "" {
		rec, err := m.repo.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if rec != nil {
			s, err := Restore(rec, endpoints)
			if err == nil {
				m.logger.Debug("Session restored from store", "session_id", id, "turns", len(s.Conversation()))
				return s, nil
			}
			m.logger.Warn("Discarding unreadable session snapshot", "session_id", id, "error", err)
		}
	}
	return New(id, m.instruction, endpoints, m.searchDefault), nil
}

// Lock claims the live session id for one submission. ok is false when a
// submission is already in flight or the session is not live.
func (m *Manager) Lock(id string) (unlock func(), ok bool) {
	m.mu.Lock()
	s, live := m.sessions[id]
	m.mu.Unlock()
	if !live || !s.TryLock() {
		return func() {}, false
	}
	return s.Unlock, true
}

// Save writes a snapshot of s to the store.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	rec, err := s.Record()
	if err != nil {
		return err
	}
	if err := m.repo.UpsertSession(ctx, rec); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID(), err)
	}
	return nil
}

// Delete ends a session in memory and in the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return m.repo.DeleteSession(ctx, id)
}

// SetEndpoints replaces the endpoint set used for sessions created from now
// on. Live sessions keep their snapshot.
func (m *Manager) SetEndpoints(endpoints []domain.Endpoint) {
	m.mu.Lock()
	m.endpoints = append([]domain.Endpoint(nil), endpoints...)
	m.mu.Unlock()
}

// Endpoints returns the current endpoint set.
func (m *Manager) Endpoints() []domain.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Endpoint(nil), m.endpoints...)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Ping checks the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

// expire removes live sessions idle for longer than ttl and returns their
// ids. Sessions with a submission in flight are skipped.
func (m *Manager) expire(ttl time.Duration, now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt()) <= ttl {
			continue
		}
		if !s.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.Unlock()
		expired = append(expired, id)
	}
	return expired
}
