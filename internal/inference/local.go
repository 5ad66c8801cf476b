package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Runtime starts the locally hosted model on demand.
type Runtime interface {
	// EnsureRunning returns the base URL of a ready model server.
	EnsureRunning(ctx context.Context) (string, error)
}

// localGeneratePath is the text-generation route of the local server.
const localGeneratePath = "/generate"

// LocalProvider is the last-resort tier backed by a local model server.
type LocalProvider struct {
	name       string
	runtime    Runtime
	httpClient *http.Client
}

// NewLocalProvider creates a local tier.
func NewLocalProvider(name string, runtime Runtime, httpClient *http.Client) *LocalProvider {
	if name == "" {
		name = "local"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LocalProvider{name: name, runtime: runtime, httpClient: httpClient}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return p.name }

// Warm starts the local server and waits until it is ready. The runtime
// bounds how long that may take.
func (p *LocalProvider) Warm(ctx context.Context) error {
	if _, err := p.runtime.EnsureRunning(ctx); err != nil {
		return fmt.Errorf("start local model: %w", err)
	}
	return nil
}

// Generate implements Provider. The session credential is never forwarded to
// the local server.
func (p *LocalProvider) Generate(ctx context.Context, in Input, params Params, _ string) (string, error) {
	baseURL, err := p.runtime.EnsureRunning(ctx)
	if err != nil {
		return "", fmt.Errorf("start local model: %w", err)
	}
	return postInference(ctx, p.httpClient, strings.TrimRight(baseURL, "/")+localGeneratePath, "", in, params)
}
