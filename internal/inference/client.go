package inference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
)

// DefaultTimeout bounds a single tier attempt.
const DefaultTimeout = 60 * time.Second

// Client tries its tiers strictly in order and stops at the first success.
type Client struct {
	tiers   []Provider
	local   Provider
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLocal sets the last-resort tier tried after every remote tier.
func WithLocal(p Provider) Option {
	return func(c *Client) { c.local = p }
}

// WithTimeout sets the per-tier timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for tier failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client over tiers in priority order.
func NewClient(tiers []Provider, opts ...Option) *Client {
	c := &Client{
		tiers:   tiers,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs the fallback chain. It returns the first successful result,
// or a *Failure listing every attempt.
func (c *Client) Generate(ctx context.Context, in Input, params Params, credential string) (Result, error) {
	failure := &Failure{}

	for i, p := range c.tiers {
		text, err := c.attempt(ctx, p, in, params, credential)
		if err == nil {
			if i > 0 {
				c.logger.Info("Inference fallback used", "endpoint", p.Name(), "tier", i)
			}
			return Result{Text: text, Endpoint: p.Name(), Tier: i, FallbackUsed: i > 0}, nil
		}
		c.logger.Warn("Inference tier failed", "endpoint", p.Name(), "tier", i, "error", err)
		failure.Attempts = append(failure.Attempts, Attempt{Endpoint: p.Name(), Err: err})
	}

	if c.local != nil {
		tier := len(c.tiers)
		text, err := c.attempt(ctx, c.local, in, params, "")
		if err == nil {
			c.logger.Info("Local fallback model used", "endpoint", c.local.Name(), "tier", tier)
			return Result{Text: text, Endpoint: c.local.Name(), Tier: tier, FallbackUsed: true}, nil
		}
		c.logger.Warn("Local fallback model failed", "endpoint", c.local.Name(), "error", err)
		failure.Attempts = append(failure.Attempts, Attempt{Endpoint: c.local.Name(), Err: err})
	}

	return Result{}, failure
}

// Tiers returns the names of the configured tiers in priority order.
func (c *Client) Tiers() []string {
	names := make([]string, 0, len(c.tiers)+1)
	for _, p := range c.tiers {
		names = append(names, p.Name())
	}
	if c.local != nil {
		names = append(names, c.local.Name())
	}
	return names
}

// warmer is implemented by tiers that must start a backend before they can
// generate. Start-up is bounded by the backend, not by the tier timeout.
type warmer interface {
	Warm(ctx context.Context) error
}

func (c *Client) attempt(ctx context.Context, p Provider, in Input, params Params, credential string) (string, error) {
	if w, ok := p.(warmer); ok {
		if err := w.Warm(ctx); err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return p.Generate(ctx, in, params, credential)
}

// Factory builds providers from endpoint configuration.
type Factory struct {
	HTTPClient *http.Client
	Local      Runtime

	// gemini holds providers by endpoint so SDK clients outlive a single
	// chain. Nil disables reuse.
	gemini *sync.Map
}

// NewFactory creates a Factory that reuses Gemini providers across chains.
func NewFactory(httpClient *http.Client, local Runtime) *Factory {
	return &Factory{HTTPClient: httpClient, Local: local, gemini: &sync.Map{}}
}

func (f Factory) geminiProvider(ep domain.Endpoint) *GeminiProvider {
	if f.gemini == nil {
		return NewGeminiProvider(ep, f.HTTPClient)
	}
	key := strings.Join([]string{ep.Name, ep.Model, ep.URL, ep.Credential}, "\x00")
	if p, ok := f.gemini.Load(key); ok {
		return p.(*GeminiProvider)
	}
	p, _ := f.gemini.LoadOrStore(key, NewGeminiProvider(ep, f.HTTPClient))
	return p.(*GeminiProvider)
}

// Provider returns the provider for ep.
func (f Factory) Provider(ep domain.Endpoint) (Provider, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	switch ep.Kind {
	case domain.KindGemini:
		return f.geminiProvider(ep), nil
	case domain.KindLocal:
		if f.Local == nil {
			return nil, fmt.Errorf("endpoint %s: local model runtime not enabled", ep.Name)
		}
		return NewLocalProvider(ep.Name, f.Local, f.HTTPClient), nil
	default:
		return NewHTTPProvider(ep, f.HTTPClient), nil
	}
}

// Client builds a Client over endpoints in the given order.
func (f Factory) Client(endpoints []domain.Endpoint, opts ...Option) (*Client, error) {
	tiers := make([]Provider, 0, len(endpoints))
	for _, ep := range endpoints {
		p, err := f.Provider(ep)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, p)
	}
	return NewClient(tiers, opts...), nil
}
