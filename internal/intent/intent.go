// Package intent recognises greetings and identity questions that are
// answered without calling a model.
package intent

import (
	"fmt"
	"strings"
)

// Kind is the classification of a user input.
type Kind int

const (
	// KindNone means the input takes the normal inference path.
	KindNone Kind = iota
	// KindGreeting is an exact greeting phrase.
	KindGreeting
	// KindIdentity asks who the assistant is.
	KindIdentity
)

func (k Kind) String() string {
	switch k {
	case KindGreeting:
		return "greeting"
	case KindIdentity:
		return "identity"
	}
	return "none"
}

// DefaultGreetings are matched exactly after trimming, ignoring case.
var DefaultGreetings = []string{
	"hi", "hello", "hey", "hii", "hello there",
	"good morning", "good afternoon", "good evening", "namaste",
}

// DefaultIdentityPhrases are matched as substrings, ignoring case.
var DefaultIdentityPhrases = []string{
	"who are you", "who made you", "who created you", "who developed you",
	"who built you", "what is your name", "what's your name", "your name",
	"are you human",
}

// Classifier holds the two fixed keyword sets and their canned replies.
type Classifier struct {
	greetings     map[string]struct{}
	identity      []string
	greetingReply string
	identityReply string
}

// NewClassifier builds a classifier with the default phrase sets. Replies
// mention name and, when set, creator.
func NewClassifier(name, creator string) *Classifier {
	if name == "" {
		name = "LawAid"
	}
	identity := fmt.Sprintf("I am %s, an AI legal assistant for questions about Indian law.", name)
	if creator != "" {
		identity = fmt.Sprintf("I am %s, an AI legal assistant for questions about Indian law, developed by %s.", name, creator)
	}
	return NewClassifierWith(DefaultGreetings, DefaultIdentityPhrases,
		fmt.Sprintf("Hello! I'm %s. Ask me any question about Indian law.", name),
		identity+" My answers are informational and not a substitute for a licensed advocate.",
	)
}

// NewClassifierWith builds a classifier from explicit phrase sets.
func NewClassifierWith(greetings, identity []string, greetingReply, identityReply string) *Classifier {
	c := &Classifier{
		greetings:     make(map[string]struct{}, len(greetings)),
		greetingReply: greetingReply,
		identityReply: identityReply,
	}
	for _, g := range greetings {
		c.greetings[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	for _, p := range identity {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.identity = append(c.identity, p)
		}
	}
	return c
}

// Classify checks greetings first, then identity phrases. It returns the
// canned reply for a match, or KindNone and "".
func (c *Classifier) Classify(input string) (Kind, string) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return KindNone, ""
	}
	if _, ok := c.greetings[normalized]; ok {
		return KindGreeting, c.greetingReply
	}
	for _, phrase := range c.identity {
		if strings.Contains(normalized, phrase) {
			return KindIdentity, c.identityReply
		}
	}
	return KindNone, ""
}
