package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func texts(turns []Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = string(t.Role()) + ":" + t.Text()
	}
	return out
}

func TestTranscriptAppendKeepsPriorTurns(t *testing.T) {
	t.Parallel()

	tr := NewTranscript("be helpful")
	var want []string
	want = append(want, "system:be helpful")

	for i, text := range []string{"q1", "a1", "q2", "a2"} {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		before := texts(tr.Turns())
		if err := tr.Append(NewTurn(role, text, time.Now())); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		after := texts(tr.Turns())
		if diff := cmp.Diff(before, after[:len(before)]); diff != "" {
			t.Fatalf("prior turns changed (-before +after):\n%s", diff)
		}
		want = append(want, string(role)+":"+text)
	}

	if diff := cmp.Diff(want, texts(tr.Turns())); diff != "" {
		t.Fatalf("unexpected transcript (-want +got):\n%s", diff)
	}
}

func TestTranscriptTurnsIsACopy(t *testing.T) {
	t.Parallel()

	tr := NewTranscript("")
	if err := tr.Append(NewTurn(RoleUser, "original", time.Time{})); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got := tr.Turns()
	got[0] = NewTurn(RoleAssistant, "mutated", time.Time{})

	if tr.Turns()[0].Text() != "original" {
		t.Fatalf("transcript was mutated through Turns()")
	}
}

func TestTranscriptRejectsLateSystemTurn(t *testing.T) {
	t.Parallel()

	tr := NewTranscript("instruction")
	err := tr.Append(NewTurn(RoleSystem, "again", time.Time{}))
	if !errors.Is(err, ErrSystemTurnOrder) {
		t.Fatalf("expected ErrSystemTurnOrder, got %v", err)
	}

	empty := NewTranscript("")
	if err := empty.Append(NewTurn(RoleSystem, "first", time.Time{})); err != nil {
		t.Fatalf("system turn on empty transcript should be accepted: %v", err)
	}
}

func TestTranscriptResetAlwaysEmptiesConversation(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 7, 250} {
		tr := NewTranscript("instruction")
		for i := 0; i < size; i++ {
			if err := tr.Append(NewTurn(RoleUser, "q", time.Time{})); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		tr.Reset()
		if n := len(tr.Conversation()); n != 0 {
			t.Fatalf("size %d: expected empty conversation after reset, got %d turns", size, n)
		}
		if tr.Len() != 1 || tr.Turns()[0].Role() != RoleSystem {
			t.Fatalf("size %d: expected only the system turn after reset", size)
		}
	}
}

func TestTranscriptJSONRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := NewTranscript("instruction")
	_ = tr.Append(NewTurn(RoleUser, "what is bail?", ts))
	_ = tr.Append(NewTurn(RoleAssistant, "Bail is...", time.Time{}))

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Transcript
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff(texts(tr.Turns()), texts(restored.Turns())); diff != "" {
		t.Fatalf("round trip changed turns (-want +got):\n%s", diff)
	}
	if !restored.Turns()[1].Timestamp().Equal(ts) {
		t.Fatalf("timestamp lost: %v", restored.Turns()[1].Timestamp())
	}
	if !restored.Turns()[2].Timestamp().IsZero() {
		t.Fatalf("expected zero timestamp to stay zero")
	}
}

func TestTranscriptUnmarshalRejectsMisplacedSystemTurn(t *testing.T) {
	t.Parallel()

	data := []byte(`{"instruction":"","turns":[{"role":"user","text":"q"},{"role":"system","text":"s"}]}`)
	var tr Transcript
	if err := json.Unmarshal(data, &tr); err == nil {
		t.Fatal("expected error for system turn after user turn")
	}
}

func TestRoleLabel(t *testing.T) {
	t.Parallel()

	cases := map[Role]string{
		RoleSystem:    "System",
		RoleUser:      "User",
		RoleAssistant: "Assistant",
	}
	for role, want := range cases {
		if got := role.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", role, got, want)
		}
	}
}
