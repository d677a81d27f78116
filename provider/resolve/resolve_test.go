package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/provider/openaicompat"
)

func TestDefaultBaseURL(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
		{"deepseek", "https://api.deepseek.com/v1"},
		{"together", "https://api.together.xyz/v1"},
		{"mistral", "https://api.mistral.ai/v1"},
		{"ollama", "http://localhost:11434/v1"},
		{"vllm", "http://localhost:8000/v1"},
		{"local", ""},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := defaultBaseURL(tt.provider); got != tt.want {
			t.Errorf("defaultBaseURL(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestProvider_Gemini(t *testing.T) {
	p, err := Provider(context.Background(), Config{
		Provider: "gemini",
		APIKey:   "test-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want %q", p.Name(), "gemini")
	}
}

func TestProvider_GeminiRequiresKey(t *testing.T) {
	if _, err := Provider(context.Background(), Config{Provider: "gemini"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestProvider_OpenAICompatDefaults(t *testing.T) {
	p, err := Provider(context.Background(), Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oc, ok := p.(*openaicompat.Provider)
	if !ok {
		t.Fatalf("expected *openaicompat.Provider, got %T", p)
	}
	if oc.Name() != "ollama" {
		t.Errorf("Name() = %q", oc.Name())
	}
	if oc.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", oc.Model(), DefaultModel)
	}
}

func TestProvider_LocalRequiresBaseURL(t *testing.T) {
	if _, err := Provider(context.Background(), Config{Provider: "local"}); err == nil {
		t.Fatal("expected error for local provider without base URL")
	}
}

func TestProvider_Unknown(t *testing.T) {
	if _, err := Provider(context.Background(), Config{Provider: "nope"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestProvider_WrappedRetryKeepsName(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(openaicompat.ChatResponse{
			Choices: []openaicompat.Choice{{Message: &openaicompat.ChoiceMessage{Content: "print(1)"}}},
		})
	}))
	defer srv.Close()

	temp := 0.1
	p, err := Provider(context.Background(), Config{
		Provider:    "local",
		BaseURL:     srv.URL,
		Temperature: &temp,
		Retries:     3,
		RPM:         600,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("Name() = %q", p.Name())
	}
	resp, err := p.Chat(context.Background(), gencode.ChatRequest{Messages: []gencode.ChatMessage{gencode.UserMessage("x")}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "print(1)" || calls != 2 {
		t.Errorf("Content = %q after %d calls", resp.Content, calls)
	}
}
