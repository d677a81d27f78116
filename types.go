package gencode

import (
	"context"

	"github.com/google/uuid"
)

// Provider is the code-generation backend: an OpenAI-compatible server or
// Gemini. Name labels the backend in logs and telemetry.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}

// Frontend is a chat channel the bot serves (Telegram, WebSocket).
type Frontend interface {
	// Poll streams incoming messages until ctx is cancelled, then closes the
	// channel.
	Poll(ctx context.Context) (<-chan IncomingMessage, error)
	// Send posts text to chatID and returns the new message ID.
	Send(ctx context.Context, chatID string, text string) (string, error)
	SendTyping(ctx context.Context, chatID string) error
}

// NewID returns a time-ordered UUIDv7, used for request, execution and run
// IDs so history sorts by creation.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// GenerationParams overrides sampling settings for a single request.
// Nil fields keep the provider default.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type ChatRequest struct {
	Messages         []ChatMessage     `json:"messages"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
	// Tag identifies the caller for logs and telemetry (e.g. "plugin.generate_code").
	Tag string `json:"tag,omitempty"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// IncomingMessage is one chat message as a Frontend delivers it.
type IncomingMessage struct {
	ID       string
	ChatID   string
	UserID   string
	Username string
	Text     string
}

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}
