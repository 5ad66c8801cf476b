// Package docqa answers questions from an uploaded document.
package docqa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes = 10 << 20

// PageSeparator delimits pages in extracted text.
const PageSeparator = "\f"

var (
	// ErrDocumentTooLarge is returned when an upload exceeds the limit.
	ErrDocumentTooLarge = errors.New("document exceeds upload limit")
	// ErrUnsupportedDocument is returned for content that is neither PDF nor
	// UTF-8 text.
	ErrUnsupportedDocument = errors.New("unsupported document type: upload a PDF or plain text file")
)

// Extract reads an upload and splits it into pages. Read failures abort the
// upload only.
func Extract(name, mimeType string, r io.Reader, maxBytes int64) (*domain.Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, ErrDocumentTooLarge
	}

	doc := &domain.Document{
		Name:       name,
		MimeType:   baseMimeType(mimeType),
		Raw:        raw,
		UploadedAt: time.Now(),
	}

	if isPDF(name, doc.MimeType, raw) {
		doc.MimeType = "application/pdf"
		pages, err := pdfPages(raw)
		if err != nil {
			return nil, err
		}
		doc.Text = strings.Join(pages, PageSeparator)
	} else {
		if !utf8.Valid(raw) {
			return nil, ErrUnsupportedDocument
		}
		if doc.MimeType == "" {
			doc.MimeType = "text/plain"
		}
		doc.Text = string(raw)
	}

	doc.Pages = Paginate(doc.Text)
	return doc, nil
}

// Paginate splits text on form feeds, or on blank lines when the text has
// none. Empty pages are kept so numbering matches the source.
func Paginate(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sep := "\n\n"
	if strings.Contains(text, PageSeparator) {
		sep = PageSeparator
	}

	parts := strings.Split(text, sep)
	pages := make([]string, len(parts))
	for i, p := range parts {
		pages[i] = strings.TrimSpace(p)
	}
	return pages
}

func pdfPages(raw []byte) (pages []string, err error) {
	// The pdf reader panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		// A stray form feed inside a page would shift numbering.
		pages = append(pages, strings.ReplaceAll(text, PageSeparator, "\n"))
	}
	return pages, nil
}

func isPDF(name, mimeType string, raw []byte) bool {
	if mimeType == "application/pdf" {
		return true
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func baseMimeType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}
