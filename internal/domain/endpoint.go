package domain

import (
	"fmt"
	"time"
)

// EndpointKind selects how a fallback tier is called.
type EndpointKind string

const (
	// KindHF is an HTTP inference API taking {inputs, parameters}.
	KindHF EndpointKind = "hf"
	// KindGemini is the Google GenAI API.
	KindGemini EndpointKind = "gemini"
	// KindLocal is the container-hosted fallback model.
	KindLocal EndpointKind = "local"
)

// Endpoint is one fallback tier. An ordered slice of endpoints is the
// fallback priority.
type Endpoint struct {
	Name       string       `json:"name" yaml:"name"`
	Kind       EndpointKind `json:"kind" yaml:"kind"`
	URL        string       `json:"url,omitempty" yaml:"url"`
	Model      string       `json:"model,omitempty" yaml:"model"`
	Credential string       `json:"-" yaml:"credential"`
}

// Validate checks that the endpoint can be called.
func (e Endpoint) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	switch e.Kind {
	case KindHF, "":
		if e.URL == "" {
			return fmt.Errorf("endpoint %s: url cannot be empty", e.Name)
		}
	case KindGemini:
		if e.Model == "" {
			return fmt.Errorf("endpoint %s: model cannot be empty", e.Name)
		}
	case KindLocal:
	default:
		return fmt.Errorf("endpoint %s: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

// Document is an uploaded file held for the session. A re-upload replaces
// it wholesale.
type Document struct {
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Raw        []byte    `json:"-"`
	Text       string    `json:"-"`
	Pages      []string  `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// PageCount returns the number of pages the document was split into.
func (d *Document) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// Status holds display-only flags for the last interaction. Every call
// overwrites it; it is not a history.
type Status struct {
	FallbackUsed bool   `json:"fallback_used"`
	Endpoint     string `json:"endpoint,omitempty"`
	Warning      string `json:"warning,omitempty"`
	Error        string `json:"error,omitempty"`
}
