package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gencode "github.com/nevindra/gencode"
)

// maxErrorBody bounds how much of an error response is kept in ErrHTTP.
const maxErrorBody = 64 << 10

// Provider implements gencode.Provider for any OpenAI-compatible API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
	logger  *slog.Logger
}

var _ gencode.Provider = (*Provider)(nil)

// NewProvider creates a provider for an OpenAI-compatible server, typically
// vLLM serving a coder model.
//
// baseURL is the API root such as "http://localhost:8000/v1"; the
// /chat/completions path is appended. An empty apiKey sends no Authorization
// header, which local vLLM and Ollama servers accept.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		name:    "openai",
		logger:  gencode.NopLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Model returns the model identifier sent with every request.
func (p *Provider) Model() string { return p.model }

// mergeGenParams appends per-request GenerationParams after the provider
// options. Options apply in order, so the request wins.
func (p *Provider) mergeGenParams(params *gencode.GenerationParams) []Option {
	if params == nil {
		return p.opts
	}
	opts := make([]Option, len(p.opts), len(p.opts)+3)
	copy(opts, p.opts)
	if params.Temperature != nil {
		opts = append(opts, WithTemperature(*params.Temperature))
	}
	if params.TopP != nil {
		opts = append(opts, WithTopP(*params.TopP))
	}
	if params.MaxTokens != nil {
		opts = append(opts, WithMaxTokens(*params.MaxTokens))
	}
	return opts
}

// Chat sends one non-streaming completion request. req.Tag travels as the
// OpenAI "user" field so server-side logs can attribute the request.
func (p *Provider) Chat(ctx context.Context, req gencode.ChatRequest) (gencode.ChatResponse, error) {
	body := BuildBody(req.Messages, p.model, p.mergeGenParams(req.GenerationParams)...)
	body.User = req.Tag
	payload, err := json.Marshal(body)
	if err != nil {
		return gencode.ChatResponse{}, p.llmErr("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return gencode.ChatResponse{}, p.llmErr("create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return gencode.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return gencode.ChatResponse{}, &gencode.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: gencode.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return gencode.ChatResponse{}, p.llmErr("decode response", err)
	}
	out, err := ParseResponse(p.name, chatResp)
	p.logger.Debug("openaicompat: chat", "provider", p.name, "model", p.model, "tag", req.Tag,
		"duration", time.Since(start), "input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	return out, err
}

func (p *Provider) llmErr(op string, err error) error {
	return &gencode.ErrLLM{Provider: p.name, Message: fmt.Sprintf("%s: %v", op, err)}
}
