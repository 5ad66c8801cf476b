package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/normalize"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 * 1024 * 1024

type requestBody struct {
	Inputs     any    `json:"inputs"`
	Parameters Params `json:"parameters"`
}

// HTTPProvider calls an inference API that takes {inputs, parameters} and
// answers with generated_text, summary_text or answer.
type HTTPProvider struct {
	name       string
	url        string
	credential string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for ep. A nil httpClient uses
// http.DefaultClient.
func NewHTTPProvider(ep domain.Endpoint, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPProvider{
		name:       ep.Name,
		url:        ep.URL,
		credential: ep.Credential,
		httpClient: httpClient,
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.name }

// Generate implements Provider.
func (p *HTTPProvider) Generate(ctx context.Context, in Input, params Params, credential string) (string, error) {
	if p.credential != "" {
		credential = p.credential
	}
	return postInference(ctx, p.httpClient, p.url, credential, in, params)
}

func postInference(ctx context.Context, httpClient *http.Client, url, credential string, in Input, params Params) (string, error) {
	data, err := json.Marshal(requestBody{Inputs: in.payload(), Parameters: params})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, excerpt(body))
	}

	return normalize.Body(body)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
