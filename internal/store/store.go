// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
)

// Repository defines the interface for persisting chat session snapshots.
type Repository interface {
	// GetSession retrieves a session snapshot. It returns nil, nil when the
	// session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// UpsertSession creates or replaces a session snapshot.
	UpsertSession(ctx context.Context, rec *domain.SessionRecord) error

	// DeleteSession removes a session snapshot. Deleting a missing session is
	// not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes snapshots idle for longer than ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
}

// Open creates the repository named by opts.Backend.
func Open(opts Options) (Repository, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return NewSQLite(opts.DBPath)
	case BackendRedis:
		return NewRedis(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			TTL:      opts.SessionTTL,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
