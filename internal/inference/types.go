// Package inference calls remote text-generation endpoints with an ordered
// fallback chain.
package inference

import (
	"context"
	"fmt"
	"strings"
)

// Params are pass-through generation settings. They are not validated.
type Params struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// DefaultParams returns the generation settings used when none are
// configured.
func DefaultParams() Params {
	return Params{
		MaxNewTokens:      512,
		Temperature:       0.2,
		TopP:              0.9,
		RepetitionPenalty: 1.15,
	}
}

// QA is the structured input of extractive question-answering models.
type QA struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// Input is either a plain prompt or a question/context pair.
type Input struct {
	Prompt string
	QA     *QA
}

// PromptInput wraps an assembled prompt.
func PromptInput(prompt string) Input {
	return Input{Prompt: prompt}
}

// QAInput wraps a question answered against context.
func QAInput(question, context string) Input {
	return Input{QA: &QA{Question: question, Context: context}}
}

// payload returns the value sent as "inputs".
func (in Input) payload() any {
	if in.QA != nil {
		return in.QA
	}
	return in.Prompt
}

// Text renders the input as a single prompt for providers that only take
// text.
func (in Input) Text() string {
	if in.QA == nil {
		return in.Prompt
	}
	return "Answer the question using only the context. " +
		"If the context does not contain the answer, reply \"no answer\".\n\n" +
		"Context:\n" + in.QA.Context + "\n\nQuestion: " + in.QA.Question + "\nAnswer:"
}

// Provider is one fallback tier.
type Provider interface {
	// Name identifies the tier in results and failure messages.
	Name() string

	// Generate returns the normalized text of one call. Credential is the
	// session bearer token; providers with their own credential ignore it.
	Generate(ctx context.Context, in Input, params Params, credential string) (string, error)
}

// Result is a successful generation.
type Result struct {
	Text         string
	Endpoint     string
	Tier         int
	FallbackUsed bool
}

// Attempt records one failed tier.
type Attempt struct {
	Endpoint string
	Err      error
}

// Failure aggregates every failed attempt in the order tried.
type Failure struct {
	Attempts []Attempt
}

func (f *Failure) Error() string {
	if len(f.Attempts) == 0 {
		return "no inference endpoints configured"
	}
	var sb strings.Builder
	sb.WriteString("all inference endpoints failed:")
	for _, a := range f.Attempts {
		fmt.Fprintf(&sb, "\n- %s: %v", a.Endpoint, a.Err)
	}
	return sb.String()
}
