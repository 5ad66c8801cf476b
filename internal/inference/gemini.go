package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ashureev/lawaid/internal/domain"
	"google.golang.org/genai"
)

var errGeminiEmpty = errors.New("gemini returned empty text")

// GeminiProvider calls the Gemini API. It always uses the endpoint's own
// API key; the session bearer token belongs to the HTTP tiers. A non-empty
// endpoint URL replaces the API base URL.
type GeminiProvider struct {
	name       string
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiProvider creates a provider for ep.
func NewGeminiProvider(ep domain.Endpoint, httpClient *http.Client) *GeminiProvider {
	return &GeminiProvider{
		name:       ep.Name,
		model:      ep.Model,
		apiKey:     ep.Credential,
		baseURL:    ep.URL,
		httpClient: httpClient,
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return p.name }

// genaiClient builds the SDK client on first use and reuses it afterwards.
func (p *GeminiProvider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, in Input, params Params, _ string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	client, err := p.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	temp := float32(params.Temperature)
	topP := float32(params.TopP)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: int32(params.MaxNewTokens),
	}

	res, err := client.Models.GenerateContent(ctx, p.model, genai.Text(in.Text()), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", errGeminiEmpty
	}
	return text, nil
}
