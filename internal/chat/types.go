// Package chat implements the legal-aid chat flow and its HTTP/WebSocket
// surface.
package chat

import (
	"github.com/ashureev/lawaid/internal/domain"
)

// ReplyKind says which step of the flow produced a reply.
type ReplyKind string

const (
	// KindCanned is a greeting or identity reply made without inference.
	KindCanned ReplyKind = "canned"
	// KindDocument is an answer found in the uploaded document.
	KindDocument ReplyKind = "document"
	// KindModel is a model reply without augmentation.
	KindModel ReplyKind = "model"
	// KindSearch is a model reply grounded on web-search snippets.
	KindSearch ReplyKind = "search"
)

// Reply is the outcome of one submission.
type Reply struct {
	Text     string        `json:"reply"`
	Kind     ReplyKind     `json:"kind"`
	Citation string        `json:"citation,omitempty"`
	Page     int           `json:"page,omitempty"`
	Status   domain.Status `json:"status"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// CredentialRequest is the body of POST /api/credential.
type CredentialRequest struct {
	Token string `json:"token"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Enabled bool `json:"enabled"`
}

// UploadResponse describes an accepted upload.
type UploadResponse struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
}

// TurnView is a transcript turn as shown to the client.
type TurnView struct {
	Role      domain.Role `json:"role"`
	Text      string      `json:"text"`
	Timestamp string      `json:"timestamp"`
}

// SessionView is the body of GET /api/session.
type SessionView struct {
	SessionID     string          `json:"session_id"`
	Turns         []TurnView      `json:"turns"`
	Status        domain.Status   `json:"status"`
	Document      *UploadResponse `json:"document,omitempty"`
	SearchEnabled bool            `json:"search_enabled"`
	HasCredential bool            `json:"has_credential"`
	Endpoints     []string        `json:"endpoints"`
}

// WebSocket frame types.
const (
	FrameMessage = "message"
	FrameReply   = "reply"
	FrameError   = "error"
	FrameWarning = "warning"
)

// Frame is one WebSocket message in either direction.
type Frame struct {
	Type     string         `json:"type"`
	Content  string         `json:"content,omitempty"`
	Kind     ReplyKind      `json:"kind,omitempty"`
	Citation string         `json:"citation,omitempty"`
	Page     int            `json:"page,omitempty"`
	Status   *domain.Status `json:"status,omitempty"`
}
