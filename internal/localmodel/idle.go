package localmodel

import (
	"context"
	"log/slog"
	"time"
)

const idleWorkerInterval = time.Minute

// Idler is the part of Runtime the idle worker needs.
type Idler interface {
	IdleSince() (lastUsed time.Time, running bool)
	Stop(ctx context.Context) error
}

// StartIdleWorker stops the local model once it has gone idle for longer than
// idle. The returned channel is closed after the goroutine exits.
func StartIdleWorker(ctx context.Context, rt Idler, idle, interval time.Duration) <-chan struct{} {
	if idle <= 0 {
		idle = defaultIdleThreshold
	}
	if interval <= 0 {
		interval = idleWorkerInterval
	}

	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Local model idle worker started", "interval", interval, "idle", idle)

		for {
			select {
			case now := <-ticker.C:
				stopIfIdle(ctx, rt, idle, now)
			case <-ctx.Done():
				slog.Info("Local model idle worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// stopIfIdle stops rt when it is running and unused for longer than idle.
func stopIfIdle(ctx context.Context, rt Idler, idle time.Duration, now time.Time) bool {
	lastUsed, running := rt.IdleSince()
	if !running || now.Sub(lastUsed) <= idle {
		return false
	}
	slog.Info("Local model idle, stopping", "idle_for", now.Sub(lastUsed).Round(time.Second))
	if err := rt.Stop(ctx); err != nil {
		slog.Error("Failed to stop idle local model", "error", err)
		return false
	}
	return true
}
