// Package gemini implements gencode.Provider for Google Gemini models using
// the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	gencode "github.com/nevindra/gencode"
)

// Gemini implements gencode.Provider for Google Gemini models.
type Gemini struct {
	client *genai.Client
	model  string

	baseURL        string
	httpClient     *http.Client
	temperature    float64
	topP           float64
	thinkingBudget *int32
	logger         *slog.Logger
}

var _ gencode.Provider = (*Gemini)(nil)

// New creates a Gemini chat provider.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Gemini, error) {
	g := &Gemini{
		model:       model,
		temperature: 0.1,
		topP:        0.9,
		logger:      gencode.NopLogger,
	}
	for _, opt := range opts {
		opt(g)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions.BaseURL = g.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, g.wrapErr("create client: " + err.Error())
	}
	g.client = client
	return g, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Chat sends a non-streaming generateContent request. System messages become
// the system instruction; assistant messages are sent with the model role.
func (g *Gemini) Chat(ctx context.Context, req gencode.ChatRequest) (gencode.ChatResponse, error) {
	contents, system := buildContents(req.Messages)
	if len(contents) == 0 {
		return gencode.ChatResponse{}, g.wrapErr("no user or assistant messages")
	}

	cfg := g.generateConfig(req.GenerationParams)
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return gencode.ChatResponse{}, g.convertErr(err)
	}

	text := resp.Text()
	if text == "" && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" &&
		resp.Candidates[0].FinishReason != genai.FinishReasonStop {
		return gencode.ChatResponse{}, g.wrapErr("empty response, finish reason " + string(resp.Candidates[0].FinishReason))
	}

	out := gencode.ChatResponse{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = gencode.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

func (g *Gemini) generateConfig(params *gencode.GenerationParams) *genai.GenerateContentConfig {
	temp := float32(g.temperature)
	topP := float32(g.topP)
	cfg := &genai.GenerateContentConfig{Temperature: &temp, TopP: &topP}
	if g.thinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: g.thinkingBudget}
	}
	if params == nil {
		return cfg
	}
	if params.Temperature != nil {
		t := float32(*params.Temperature)
		cfg.Temperature = &t
	}
	if params.TopP != nil {
		p := float32(*params.TopP)
		cfg.TopP = &p
	}
	if params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*params.MaxTokens)
	}
	return cfg
}

// buildContents maps chat messages to Gemini contents and joins system
// messages into one instruction.
func buildContents(msgs []gencode.ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func (g *Gemini) wrapErr(msg string) error {
	return &gencode.ErrLLM{Provider: "gemini", Message: msg}
}

// convertErr maps SDK errors to gencode.ErrHTTP so retry middleware can act
// on the status code and the server-provided retry delay.
func (g *Gemini) convertErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &gencode.ErrHTTP{
			Status:     apiErr.Code,
			Body:       fmt.Sprintf("%s: %s", apiErr.Status, apiErr.Message),
			RetryAfter: retryDelay(apiErr.Details),
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return g.wrapErr("request failed: " + err.Error())
}

// retryDelay extracts the retryDelay of a google.rpc.RetryInfo detail.
// Returns 0 if not found or unparseable.
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		if d["@type"] != "type.googleapis.com/google.rpc.RetryInfo" {
			continue
		}
		if s, ok := d["retryDelay"].(string); ok {
			if dur, err := time.ParseDuration(s); err == nil {
				return dur
			}
		}
	}
	return 0
}
