package gemini

import (
	"log/slog"
	"net/http"
)

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithThinkingBudget sets the thinking token budget. 0 disables thinking on
// models that allow it; -1 lets the model decide. Omitted by default.
func WithThinkingBudget(tokens int32) Option {
	return func(g *Gemini) { g.thinkingBudget = &tokens }
}

// WithBaseURL overrides the API endpoint (for proxies and tests).
func WithBaseURL(url string) Option {
	return func(g *Gemini) { g.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// WithLogger sets a structured logger for the provider.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) {
		if l != nil {
			g.logger = l
		}
	}
}
