package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// ConversationLogger records chat traffic as NDJSON.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	// CloseSession releases the per-session file of an ended session.
	CloseSession(sessionID string)
	Close() error
}

// ConversationLogEvent is one NDJSON line.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogConfig controls where events are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) CloseSession(string)      {}
func (noopConversationLogger) Close() error             { return nil }

type logItem struct {
	event        ConversationLogEvent
	closeSession string
}

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan logItem
	done   chan struct{}

	files   map[string]*os.File
	global  *os.File
	dropped atomic.Int64
}

// NewConversationLogger starts a background writer. A disabled config
// returns a logger that discards everything. Events are dropped when the
// queue is full.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan logItem, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- logItem{event: event}:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("Conversation log queue full, dropping events", "dropped", n)
		}
	}
}

func (l *fileConversationLogger) CloseSession(sessionID string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.queue <- logItem{closeSession: sessionID}
}

func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done

	var firstErr error
	for id, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conversation log %s: %w", id, err)
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return firstErr
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for item := range l.queue {
		if item.closeSession != "" {
			l.closeFile(item.closeSession)
			continue
		}
		l.write(item.event)
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("Failed to encode conversation log event", "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled && event.SessionID != "" {
		f, err := l.sessionFile(event.SessionID)
		if err != nil {
			l.logger.Warn("Failed to open conversation log", "session_id", event.SessionID, "error", err)
		} else if _, err := f.Write(line); err != nil {
			l.logger.Warn("Failed to write conversation log", "session_id", event.SessionID, "error", err)
		}
	}
	if l.global != nil {
		if _, err := l.global.Write(line); err != nil {
			l.logger.Warn("Failed to write global conversation log", "error", err)
		}
	}
}

func (l *fileConversationLogger) sessionFile(sessionID string) (*os.File, error) {
	if f, ok := l.files[sessionID]; ok {
		return f, nil
	}
	path := filepath.Join(l.cfg.Dir, safeFileName(sessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[sessionID] = f
	return f, nil
}

func (l *fileConversationLogger) closeFile(sessionID string) {
	f, ok := l.files[sessionID]
	if !ok {
		return
	}
	delete(l.files, sessionID)
	if err := f.Close(); err != nil {
		l.logger.Debug("Failed to close conversation log", "session_id", sessionID, "error", err)
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeFileName(id string) string {
	name := unsafeFileChars.ReplaceAllString(id, "_")
	if name == "" || strings.Trim(name, ".") == "" {
		return "session"
	}
	return name
}

// ansiPattern matches CSI, OSC and two-byte escape sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)|\x1b[@-Z\\-_]`)

// cleanForReadability strips escape sequences and control characters,
// keeping newlines and tabs.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
