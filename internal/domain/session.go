package domain

import (
	"time"
)

// SessionRecord is the persisted snapshot of a chat session. The credential
// and the uploaded document body are never persisted.
type SessionRecord struct {
	SessionID      string    `json:"session_id"`
	TranscriptJSON string    `json:"transcript_json"`
	Status         Status    `json:"status"`
	SearchEnabled  bool      `json:"search_enabled"`
	DocumentName   string    `json:"document_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Expired reports whether the record has been idle for longer than ttl.
func (r *SessionRecord) Expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(r.UpdatedAt) > ttl
}
