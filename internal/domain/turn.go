// Package domain contains core domain types for the LawAid chat service.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleSystem is the fixed instruction that precedes the conversation.
	RoleSystem Role = "system"
	// RoleUser is a question typed by the user.
	RoleUser Role = "user"
	// RoleAssistant is a reply produced by the service.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Label returns the capitalised role name used in assembled prompts.
func (r Role) Label() string {
	switch r {
	case RoleSystem:
		return "System"
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	}
	return string(r)
}

// ErrSystemTurnOrder is returned when a system turn is appended after
// conversational turns.
var ErrSystemTurnOrder = errors.New("system turn must precede all conversational turns")

// Turn is one message in a conversation. Turns are values; the fields are
// unexported so a turn cannot change after creation.
type Turn struct {
	role      Role
	text      string
	timestamp time.Time
}

// NewTurn creates a turn. A zero timestamp means "not recorded".
func NewTurn(role Role, text string, ts time.Time) Turn {
	return Turn{role: role, text: text, timestamp: ts}
}

// Role returns the role the turn was created with.
func (t Turn) Role() Role { return t.role }

// Text returns the turn content.
func (t Turn) Text() string { return t.text }

// Timestamp returns the creation time, zero if none was recorded.
func (t Turn) Timestamp() time.Time { return t.timestamp }

type turnJSON struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t Turn) MarshalJSON() ([]byte, error) {
	out := turnJSON{Role: t.role, Text: t.text}
	if !t.timestamp.IsZero() {
		ts := t.timestamp
		out.Timestamp = &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var in turnJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Role.Valid() {
		return fmt.Errorf("unknown role %q", in.Role)
	}
	t.role = in.Role
	t.text = in.Text
	if in.Timestamp != nil {
		t.timestamp = *in.Timestamp
	}
	return nil
}

// Transcript is the ordered, append-only history of one session.
// It is owned by a single session and is not safe for concurrent use.
type Transcript struct {
	instruction string
	turns       []Turn
}

// NewTranscript creates a transcript seeded with a system turn holding
// instruction. An empty instruction seeds nothing.
func NewTranscript(instruction string) *Transcript {
	t := &Transcript{instruction: instruction}
	t.seed()
	return t
}

func (t *Transcript) seed() {
	t.turns = nil
	if t.instruction != "" {
		t.turns = append(t.turns, NewTurn(RoleSystem, t.instruction, time.Time{}))
	}
}

// Append adds a turn at the end of the transcript.
func (t *Transcript) Append(turn Turn) error {
	if !turn.role.Valid() {
		return fmt.Errorf("append turn: unknown role %q", turn.role)
	}
	if turn.role == RoleSystem && len(t.turns) > 0 {
		return ErrSystemTurnOrder
	}
	t.turns = append(t.turns, turn)
	return nil
}

// Turns returns a copy of every turn, system turn included.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Conversation returns a copy of the non-system turns.
func (t *Transcript) Conversation() []Turn {
	out := make([]Turn, 0, len(t.turns))
	for _, turn := range t.turns {
		if turn.role != RoleSystem {
			out = append(out, turn)
		}
	}
	return out
}

// Instruction returns the system instruction the transcript was seeded with.
func (t *Transcript) Instruction() string {
	return t.instruction
}

// Len returns the number of turns, system turn included.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Reset clears the whole history and re-seeds the system turn.
func (t *Transcript) Reset() {
	t.seed()
}

type transcriptJSON struct {
	Instruction string `json:"instruction"`
	Turns       []Turn `json:"turns"`
}

// MarshalJSON implements json.Marshaler.
func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(transcriptJSON{Instruction: t.instruction, Turns: t.turns})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded turns are replayed
// through Append so a stored transcript obeys the same ordering rules.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var in transcriptJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	restored := Transcript{instruction: in.Instruction}
	for i, turn := range in.Turns {
		if err := restored.Append(turn); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	*t = restored
	return nil
}
