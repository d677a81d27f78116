package openaicompat

import (
	"log/slog"
	"net/http"
)

// Option adjusts the body of every chat completion request.
type Option func(*ChatRequest)

// WithTemperature sets the sampling temperature. Code generation usually
// runs cold (0.0-0.3).
func WithTemperature(t float64) Option {
	return func(r *ChatRequest) { r.Temperature = &t }
}

func WithTopP(p float64) Option {
	return func(r *ChatRequest) { r.TopP = &p }
}

// WithMaxTokens caps the completion length, bounding how much code one
// request can produce.
func WithMaxTokens(n int) Option {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

// WithStop ends generation at any of s, e.g. a closing fence.
func WithStop(s ...string) Option {
	return func(r *ChatRequest) { r.Stop = s }
}

// WithSeed asks servers that support it (vLLM, OpenAI) for repeatable samples.
func WithSeed(s int) Option {
	return func(r *ChatRequest) { r.Seed = &s }
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithName sets the name reported by Name and in telemetry. Default "openai".
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithOptions applies opts to every request before the per-request
// GenerationParams, which therefore win.
func WithOptions(opts ...Option) ProviderOption {
	return func(p *Provider) { p.opts = append(p.opts, opts...) }
}

func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}
