// Package search augments questions with snippets from a web-search API
// restricted to trusted legal-reference domains.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// DefaultBaseURL is the SerpAPI JSON endpoint.
	DefaultBaseURL = "https://serpapi.com/search.json"
	// DefaultEngine is the search engine requested from the provider.
	DefaultEngine = "google"
	// DefaultNumResults caps the results of one request.
	DefaultNumResults = 5

	maxResponseBytes = 5 * 1024 * 1024
)

// DefaultDomains is the allow-list of government and legal-reference sites.
var DefaultDomains = []string{
	"indiacode.nic.in",
	"legislative.gov.in",
	"sci.gov.in",
	"main.sci.gov.in",
	"indiankanoon.org",
}

// ErrMissingAPIKey is returned when no search API key is configured.
var ErrMissingAPIKey = errors.New("search API key not configured")

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Engine     string
	NumResults int
	Domains    []string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues one restricted search per question.
type Client struct {
	baseURL    string
	apiKey     string
	engine     string
	num        int
	domains    []string
	httpClient *http.Client
}

// Augmentation is the search context for one question.
type Augmentation struct {
	// Context holds every snippet in provider order, one paragraph each.
	Context string
	// Citation is the first result's link.
	Citation string
	// Results is the number of results returned.
	Results int
}

type organicResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
	Error          string          `json:"error"`
}

// NewClient creates a Client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = DefaultNumResults
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultDomains
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		engine:     cfg.Engine,
		num:        cfg.NumResults,
		domains:    cfg.Domains,
		httpClient: cfg.HTTPClient,
	}
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Query appends the domain restriction clause to q.
func (c *Client) Query(q string) string {
	if len(c.domains) == 0 {
		return strings.TrimSpace(q)
	}
	sites := make([]string, len(c.domains))
	for i, d := range c.domains {
		sites[i] = "site:" + d
	}
	return strings.TrimSpace(q) + " (" + strings.Join(sites, " OR ") + ")"
}

// Search runs one request and concatenates the returned snippets.
func (c *Client) Search(ctx context.Context, q string) (Augmentation, error) {
	if !c.Enabled() {
		return Augmentation{}, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", c.Query(q))
	params.Set("api_key", c.apiKey)
	params.Set("num", strconv.Itoa(c.num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Augmentation{}, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Augmentation{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Augmentation{}, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Augmentation{}, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Augmentation{}, fmt.Errorf("parse search response: %w", err)
	}
	if sr.Error != "" {
		return Augmentation{}, fmt.Errorf("search API error: %s", sr.Error)
	}

	return combine(sr.OrganicResults), nil
}

func combine(results []organicResult) Augmentation {
	aug := Augmentation{Results: len(results)}
	if len(results) == 0 {
		return aug
	}
	aug.Citation = results[0].Link

	paragraphs := make([]string, 0, len(results))
	for _, r := range results {
		text := r.Snippet
		if text == "" {
			text = r.Description
		}
		text = plainText(text)
		if text == "" {
			continue
		}
		paragraphs = append(paragraphs, text)
	}
	aug.Context = strings.Join(paragraphs, "\n\n")
	return aug
}

// plainText drops markup such as <b> highlight tags and unescapes entities.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
