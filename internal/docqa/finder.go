package docqa

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/lawaid/internal/inference"
	"github.com/ashureev/lawaid/internal/normalize"
)

// Generator is the inference dependency of Finder.
type Generator interface {
	Generate(ctx context.Context, in inference.Input, params inference.Params, credential string) (inference.Result, error)
}

// noAnswer holds replies that mean the page did not contain an answer.
var noAnswer = map[string]struct{}{
	"":                                         {},
	"no answer":                                {},
	"unanswerable":                             {},
	"unknown":                                  {},
	"n/a":                                      {},
	"none":                                     {},
	strings.ToLower(normalize.UnrecognizedFormat): {},
}

// Match is an accepted answer and the 1-indexed page it came from.
type Match struct {
	Answer string
	Page   int
}

// Finder scans pages in order and stops at the first accepted answer.
type Finder struct {
	gen    Generator
	logger *slog.Logger
}

// NewFinder creates a Finder. A nil logger uses slog.Default.
func NewFinder(gen Generator, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{gen: gen, logger: logger}
}

// Find queries one page at a time. A page whose call fails counts as having
// no answer.
func (f *Finder) Find(ctx context.Context, question string, pages []string, params inference.Params, credential string) (Match, bool) {
	for i, page := range pages {
		res, err := f.gen.Generate(ctx, inference.QAInput(question, page), params, credential)
		if err != nil {
			f.logger.Warn("Document QA page failed", "page", i+1, "error", err)
			continue
		}
		answer := strings.TrimSpace(res.Text)
		if Accepted(answer) {
			return Match{Answer: answer, Page: i + 1}, true
		}
	}
	return Match{}, false
}

// Accepted reports whether answer is non-empty and not a no-answer reply.
func Accepted(answer string) bool {
	_, rejected := noAnswer[strings.ToLower(strings.TrimSpace(answer))]
	return !rejected
}
