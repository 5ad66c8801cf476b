package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/lawaid/internal/docqa"
	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/inference"
	"github.com/ashureev/lawaid/internal/intent"
	"github.com/ashureev/lawaid/internal/prompt"
	"github.com/ashureev/lawaid/internal/search"
	"github.com/ashureev/lawaid/internal/session"
)

var (
	// ErrMissingCredential is returned when a submission needs inference
	// and the session has no credential.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrEmptyMessage is returned for blank submissions.
	ErrEmptyMessage = errors.New("message is required")
)

// Generator runs the inference fallback chain.
type Generator interface {
	Generate(ctx context.Context, in inference.Input, params inference.Params, credential string) (inference.Result, error)
}

// Searcher fetches web-search context for a question.
type Searcher interface {
	Search(ctx context.Context, q string) (search.Augmentation, error)
}

// ClientFactory builds the generation chain for a session's endpoint set.
type ClientFactory func(endpoints []domain.Endpoint) (Generator, error)

// Config holds the collaborators of a Service.
type Config struct {
	Classifier *intent.Classifier
	Clients    ClientFactory
	// QA answers document questions. When nil the session's generation
	// chain is used.
	QA     Generator
	Search Searcher
	Params inference.Params
	// DefaultCredential is used by sessions that have not set their own.
	DefaultCredential string
	MaxUploadBytes    int64
	Logger            *slog.Logger
}

// Service runs one submission through the chat flow.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Clients == nil {
		return nil, fmt.Errorf("chat service: client factory is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = intent.NewClassifier("", "")
	}
	if cfg.Params == (inference.Params{}) {
		cfg.Params = inference.DefaultParams()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = docqa.DefaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// SearchAvailable reports whether web search can be turned on.
func (s *Service) SearchAvailable() bool {
	return s.cfg.Search != nil
}

func (s *Service) credential(sess *session.Session) string {
	if c := sess.Credential(); c != "" {
		return c
	}
	return s.cfg.DefaultCredential
}

// Ask processes one user submission. The caller must hold the session's
// submission lock.
//
// On ErrMissingCredential nothing is appended. When every inference tier
// fails the user turn stays in the transcript, no assistant turn is added,
// and the returned error is the aggregate *inference.Failure.
func (s *Service) Ask(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	sess.Touch()

	if kind, canned := s.cfg.Classifier.Classify(text); kind != intent.KindNone {
		if err := s.appendExchange(sess, text, canned); err != nil {
			return Reply{}, err
		}
		var st domain.Status
		if s.credential(sess) == "" && sess.Status().Warning == session.WarningMissingCredential {
			st.Warning = session.WarningMissingCredential
		}
		sess.SetStatus(st)
		return Reply{Text: canned, Kind: KindCanned, Status: sess.Status()}, nil
	}

	credential := s.credential(sess)
	if credential == "" {
		sess.SetWarning(session.WarningMissingCredential)
		return Reply{Status: sess.Status()}, ErrMissingCredential
	}

	if err := sess.Append(domain.RoleUser, text); err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}

	gen, err := s.cfg.Clients(sess.Endpoints())
	if err != nil {
		sess.SetStatus(domain.Status{Error: err.Error()})
		return Reply{Status: sess.Status()}, fmt.Errorf("build inference client: %w", err)
	}

	if doc := sess.Document(); doc.PageCount() > 0 {
		if reply, ok := s.answerFromDocument(ctx, sess, gen, doc, text, credential); ok {
			return reply, nil
		}
	}

	instruction := sess.Instruction()
	kind := KindModel
	var citation, warning string
	if sess.SearchEnabled() && s.cfg.Search != nil {
		aug, err := s.cfg.Search.Search(ctx, text)
		switch {
		case err != nil:
			s.logger.Warn("Web search failed", "session_id", sess.ID(), "error", err)
			warning = "Web search unavailable: " + err.Error()
		case aug.Context != "":
			instruction = prompt.WithContext(instruction, aug.Context)
			citation = aug.Citation
			kind = KindSearch
		}
	}

	res, err := gen.Generate(ctx, inference.PromptInput(prompt.Assemble(instruction, sess.Conversation())), s.cfg.Params, credential)
	if err != nil {
		sess.SetStatus(domain.Status{Warning: warning, Error: err.Error()})
		return Reply{Status: sess.Status()}, err
	}

	answer := prompt.ExtractReply(res.Text)
	if err := sess.Append(domain.RoleAssistant, answer); err != nil {
		return Reply{}, fmt.Errorf("append assistant turn: %w", err)
	}
	sess.SetStatus(domain.Status{FallbackUsed: res.FallbackUsed, Endpoint: res.Endpoint, Warning: warning})

	return Reply{Text: answer, Kind: kind, Citation: citation, Status: sess.Status()}, nil
}

func (s *Service) answerFromDocument(ctx context.Context, sess *session.Session, gen Generator, doc *domain.Document, question, credential string) (Reply, bool) {
	qa := s.cfg.QA
	if qa == nil {
		qa = textQA{gen}
	}
	match, ok := docqa.NewFinder(qa, s.logger).Find(ctx, question, doc.Pages, s.cfg.Params, credential)
	if !ok {
		s.logger.Debug("No answer in uploaded document", "session_id", sess.ID(), "document", doc.Name, "pages", doc.PageCount())
		return Reply{}, false
	}
	if err := sess.Append(domain.RoleAssistant, match.Answer); err != nil {
		s.logger.Error("Failed to append document answer", "session_id", sess.ID(), "error", err)
		return Reply{}, false
	}
	sess.SetStatus(domain.Status{})
	return Reply{
		Text:     match.Answer,
		Kind:     KindDocument,
		Citation: doc.Name,
		Page:     match.Page,
		Status:   sess.Status(),
	}, true
}

// textQA runs document questions on a text-generation chain, which only
// accepts string inputs. Echoed prompts are cut at the answer cue.
type textQA struct {
	gen Generator
}

const qaAnswerCue = "Answer:"

func (q textQA) Generate(ctx context.Context, in inference.Input, params inference.Params, credential string) (inference.Result, error) {
	res, err := q.gen.Generate(ctx, inference.PromptInput(in.Text()), params, credential)
	if err != nil {
		return res, err
	}
	if i := strings.LastIndex(res.Text, qaAnswerCue); i >= 0 {
		res.Text = res.Text[i+len(qaAnswerCue):]
	}
	res.Text = strings.TrimSpace(res.Text)
	return res, nil
}

func (s *Service) appendExchange(sess *session.Session, question, answer string) error {
	if err := sess.Append(domain.RoleUser, question); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	if err := sess.Append(domain.RoleAssistant, answer); err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	return nil
}

// Upload extracts and paginates a document and makes it the session's
// document. On error the previous document is kept.
func (s *Service) Upload(_ context.Context, sess *session.Session, name, mimeType string, r io.Reader) (*domain.Document, error) {
	doc, err := docqa.Extract(name, mimeType, r, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	sess.SetDocument(doc)
	s.logger.Info("Document uploaded",
		"session_id", sess.ID(),
		"document", doc.Name,
		"mime_type", doc.MimeType,
		"pages", doc.PageCount(),
	)
	return doc, nil
}

// Reset clears the session transcript, status flags and document.
func (s *Service) Reset(sess *session.Session) {
	sess.Reset()
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}
