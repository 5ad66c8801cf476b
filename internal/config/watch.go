package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// WatchEndpoints reloads path whenever it changes and passes the new tiers to
// onChange. Invalid files are logged and ignored. The parent directory is
// watched so editors that replace the file are handled. The returned channel
// is closed after the watcher stops.
func WatchEndpoints(ctx context.Context, path string, onChange func([]domain.Endpoint)) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve endpoints path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = watcher.Close() }()

		timer := time.NewTimer(watchDebounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Endpoints watcher error", "error", err)
			case <-timer.C:
				eps, err := LoadEndpoints(abs)
				if err != nil {
					slog.Warn("Ignoring invalid endpoints file", "path", abs, "error", err)
					continue
				}
				slog.Info("Endpoints reloaded", "path", abs, "count", len(eps))
				onChange(eps)
			}
		}
	}()
	return done, nil
}
