package session

import (
	"context"
	"time"
)

// DefaultTTL is how long an idle session lives.
const DefaultTTL = 60 * time.Minute

// DefaultSweepInterval is how often the TTL worker runs.
const DefaultSweepInterval = 5 * time.Minute

// CleanupCallback is called for each session removed by the TTL worker.
type CleanupCallback func(sessionID string)

// StartTTLWorker runs a background goroutine that periodically drops idle
// sessions from memory and from the store. The returned channel is closed
// once the goroutine has exited after ctx is canceled.
func StartTTLWorker(ctx context.Context, mgr *Manager, ttl, interval time.Duration, onCleanup CleanupCallback) <-chan struct{} {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		mgr.logger.Info("Session TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, mgr, ttl, time.Now(), onCleanup)
			case <-ctx.Done():
				mgr.logger.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep runs one expiry pass and returns the ids of the live sessions it
// removed.
func Sweep(ctx context.Context, mgr *Manager, ttl time.Duration, now time.Time, onCleanup CleanupCallback) []string {
	expired := mgr.expire(ttl, now)
	if len(expired) > 0 {
		mgr.logger.Info("Session TTL worker found expired sessions", "count", len(expired))
	}

	for _, id := range expired {
		if err := mgr.repo.DeleteSession(ctx, id); err != nil {
			mgr.logger.Warn("Session TTL worker failed to delete session",
				"error", err,
				"session_id", id)
		}
		if onCleanup != nil {
			onCleanup(id)
		}
	}

	if deleted, err := mgr.repo.CleanupExpiredSessions(ctx, ttl); err != nil {
		mgr.logger.Error("Session TTL worker failed to cleanup stored sessions", "error", err)
	} else if deleted > 0 {
		mgr.logger.Debug("Session TTL worker cleaned up stored sessions", "count", deleted)
	}
	return expired
}
