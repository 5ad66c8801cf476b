package intent

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier("LawAid", "Dhruvjoy")

	cases := []struct {
		input string
		want  Kind
	}{
		{"hello", KindGreeting},
		{"  HeLLo  ", KindGreeting},
		{"Good Morning", KindGreeting},
		{"hello, what is section 420?", KindNone},
		{"Who are you?", KindIdentity},
		{"tell me, WHO MADE YOU", KindIdentity},
		{"what's your name", KindIdentity},
		{"What is anticipatory bail?", KindNone},
		{"", KindNone},
		{"   ", KindNone},
	}
	for _, tc := range cases {
		got, reply := c.Classify(tc.input)
		if got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if (got == KindNone) != (reply == "") {
			t.Errorf("Classify(%q): reply %q inconsistent with kind %v", tc.input, reply, got)
		}
	}
}

func TestGreetingBeatsIdentity(t *testing.T) {
	t.Parallel()

	c := NewClassifierWith([]string{"hey who are you"}, []string{"who are you"}, "greet", "ident")
	kind, reply := c.Classify("Hey who are you")
	if kind != KindGreeting || reply != "greet" {
		t.Fatalf("expected greeting to take priority, got %v %q", kind, reply)
	}
}

func TestCannedReplies(t *testing.T) {
	t.Parallel()

	c := NewClassifier("LawAid", "Dhruvjoy")
	_, greet := c.Classify("hi")
	if !strings.Contains(greet, "LawAid") {
		t.Errorf("greeting reply should name the assistant: %q", greet)
	}
	_, ident := c.Classify("who created you")
	if !strings.Contains(ident, "Dhruvjoy") {
		t.Errorf("identity reply should name the creator: %q", ident)
	}

	_, anon := NewClassifier("", "").Classify("who are you")
	if strings.Contains(anon, "developed by") {
		t.Errorf("identity reply without creator should not mention one: %q", anon)
	}
}
