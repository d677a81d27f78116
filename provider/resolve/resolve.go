// Package resolve builds a gencode.Provider from provider-agnostic
// configuration.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/provider/gemini"
	"github.com/nevindra/gencode/provider/openaicompat"
)

// DefaultModel is used for OpenAI-compatible providers when Config.Model is
// empty.
const DefaultModel = "qwen2.5-coder-7b"

// DefaultGeminiModel is used for the gemini provider when Config.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "openai", "groq", "deepseek", "together", "mistral", "ollama", "vllm", "local"
	APIKey   string
	Model    string
	BaseURL  string // required for "local"; auto-filled for known providers

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// Retries wraps the provider with gencode.WithRetry when > 1.
	Retries int
	// Timeout bounds each request when Retries > 1.
	Timeout time.Duration
	// RPM wraps the provider with gencode.WithRateLimit when > 0.
	RPM int

	Logger *slog.Logger
}

// Provider creates a gencode.Provider from a provider-agnostic Config.
func Provider(ctx context.Context, cfg Config) (gencode.Provider, error) {
	var (
		p   gencode.Provider
		err error
	)
	switch cfg.Provider {
	case "gemini":
		p, err = geminiProvider(ctx, cfg)
	case "openai", "groq", "deepseek", "together", "mistral", "ollama", "vllm", "local":
		p, err = openaiCompatProvider(cfg)
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return wrap(p, cfg), nil
}

func wrap(p gencode.Provider, cfg Config) gencode.Provider {
	if cfg.RPM > 0 {
		p = gencode.WithRateLimit(p, gencode.RPM(cfg.RPM))
	}
	if cfg.Retries > 1 {
		opts := []gencode.RetryOption{gencode.RetryMaxAttempts(cfg.Retries)}
		if cfg.Timeout > 0 {
			opts = append(opts, gencode.RetryTimeout(cfg.Timeout))
		}
		if cfg.Logger != nil {
			opts = append(opts, gencode.RetryLogger(cfg.Logger))
		}
		p = gencode.WithRetry(p, opts...)
	}
	return p
}

func geminiProvider(ctx context.Context, cfg Config) (gencode.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resolve: gemini requires an API key")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	var opts []gemini.Option
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Logger != nil {
		opts = append(opts, gemini.WithLogger(cfg.Logger))
	}
	p, err := gemini.New(ctx, cfg.APIKey, model, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	return p, nil
}

func openaiCompatProvider(cfg Config) (gencode.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("resolve: provider %q requires a base URL", cfg.Provider)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	provOpts := []openaicompat.ProviderOption{openaicompat.WithName(cfg.Provider)}
	if cfg.Logger != nil {
		provOpts = append(provOpts, openaicompat.WithLogger(cfg.Logger))
	}
	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		reqOpts = append(reqOpts, openaicompat.WithMaxTokens(*cfg.MaxTokens))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(cfg.APIKey, model, baseURL, provOpts...), nil
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	case "vllm":
		return "http://localhost:8000/v1"
	default:
		return ""
	}
}
