// Package session holds per-user chat state: the transcript, the
// credential, the uploaded document and display flags.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/google/uuid"
)

// WarningMissingCredential is shown when a chat is submitted before a
// credential is provided.
const WarningMissingCredential = "Please enter an API key to continue."

// Session is one user's conversation. Field access goes through methods so
// that a status read can proceed while a submission is in flight.
type Session struct {
	id        string
	createdAt time.Time

	mu            sync.RWMutex
	credential    string
	transcript    *domain.Transcript
	document      *domain.Document
	documentName  string
	status        domain.Status
	endpoints     []domain.Endpoint
	searchEnabled bool
	updatedAt     time.Time

	submit sync.Mutex
}

// New creates a session seeded with instruction and a snapshot of the
// endpoint set.
func New(id, instruction string, endpoints []domain.Endpoint, searchEnabled bool) *Session {
	if id == "" {
		id = NewID()
	}
	now := time.Now()
	return &Session{
		id:            id,
		createdAt:     now,
		transcript:    domain.NewTranscript(instruction),
		endpoints:     append([]domain.Endpoint(nil), endpoints...),
		searchEnabled: searchEnabled,
		updatedAt:     now,
	}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last activity time.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Credential returns the session credential.
func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// SetCredential stores the credential and clears the missing-credential
// warning.
func (s *Session) SetCredential(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = token
	if s.status.Warning == WarningMissingCredential {
		s.status.Warning = ""
	}
	s.updatedAt = time.Now()
}

// Instruction returns the transcript's system instruction.
func (s *Session) Instruction() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Instruction()
}

// Conversation returns a copy of the non-system turns.
func (s *Session) Conversation() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Conversation()
}

// Turns returns a copy of all turns, system turn first.
func (s *Session) Turns() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Turns()
}

// Append adds a turn stamped with the current time.
func (s *Session) Append(role domain.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.transcript.Append(domain.NewTurn(role, text, now)); err != nil {
		return err
	}
	s.updatedAt = now
	return nil
}

// Document returns the uploaded document, or nil.
func (s *Session) Document() *domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// DocumentName returns the name of the uploaded document. It survives a
// restore from the store even though the body does not.
func (s *Session) DocumentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentName
}

// SetDocument replaces the uploaded document wholesale.
func (s *Session) SetDocument(doc *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = doc
	s.documentName = ""
	if doc != nil {
		s.documentName = doc.Name
	}
	s.updatedAt = time.Now()
}

// Status returns the display flags of the last interaction.
func (s *Session) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus overwrites the display flags.
func (s *Session) SetStatus(st domain.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// SetWarning sets the warning flag, leaving the other flags as they are.
func (s *Session) SetWarning(msg string) {
	s.mu.Lock()
	s.status.Warning = msg
	s.mu.Unlock()
}

// Endpoints returns the endpoint set the session was created with.
func (s *Session) Endpoints() []domain.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Endpoint(nil), s.endpoints...)
}

// SearchEnabled reports whether web-search augmentation is on.
func (s *Session) SearchEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchEnabled
}

// SetSearchEnabled toggles web-search augmentation.
func (s *Session) SetSearchEnabled(on bool) {
	s.mu.Lock()
	s.searchEnabled = on
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Reset clears the transcript back to the system turn, the status flags and
// the uploaded document. The credential is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript.Reset()
	s.status = domain.Status{}
	s.document = nil
	s.documentName = ""
	s.updatedAt = time.Now()
}

// TryLock claims the session for one submission.
func (s *Session) TryLock() bool { return s.submit.TryLock() }

// Unlock releases a claim taken with TryLock.
func (s *Session) Unlock() { s.submit.Unlock() }

// Record builds the persisted snapshot.
func (s *Session) Record() (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.Marshal(s.transcript)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return &domain.SessionRecord{
		SessionID:      s.id,
		TranscriptJSON: string(data),
		Status:         s.status,
		SearchEnabled:  s.searchEnabled,
		DocumentName:   s.documentName,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}, nil
}

// Restore rebuilds a session from a snapshot. The credential and document
// body are not part of a snapshot and start empty.
func Restore(rec *domain.SessionRecord, endpoints []domain.Endpoint) (*Session, error) {
	var transcript domain.Transcript
	if err := json.Unmarshal([]byte(rec.TranscriptJSON), &transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &Session{
		id:            rec.SessionID,
		createdAt:     rec.CreatedAt,
		transcript:    &transcript,
		documentName:  rec.DocumentName,
		status:        rec.Status,
		endpoints:     append([]domain.Endpoint(nil), endpoints...),
		searchEnabled: rec.SearchEnabled,
		updatedAt:     time.Now(),
	}, nil
}
