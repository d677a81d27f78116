package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gencode "github.com/nevindra/gencode"
)

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "qwen2.5-coder-7b" {
			t.Errorf("expected model qwen2.5-coder-7b, got %s", req.Model)
		}
		if req.User != "plugin.generate_code" {
			t.Errorf("expected tag in user field, got %q", req.User)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			ID:      "chatcmpl-1",
			Choices: []Choice{{Message: &ChoiceMessage{Role: "assistant", Content: "Hello!"}}},
			Usage:   &Usage{PromptTokens: 5, CompletionTokens: 2},
		})
	}))
	defer srv.Close()

	p := NewProvider("test-key", "qwen2.5-coder-7b", srv.URL+"/")
	resp, err := p.Chat(context.Background(), gencode.ChatRequest{
		Messages: []gencode.ChatMessage{gencode.UserMessage("Hi")},
		Tag:      "plugin.generate_code",
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestProvider_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	p := NewProvider("key", "m", srv.URL)
	_, err := p.Chat(context.Background(), gencode.ChatRequest{Messages: []gencode.ChatMessage{gencode.UserMessage("Hi")}})

	var httpErr *gencode.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *gencode.ErrHTTP, got %T", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", httpErr.RetryAfter)
	}
}

func TestProvider_Chat_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewProvider("", "m", srv.URL, WithName("local")).Chat(context.Background(),
		gencode.ChatRequest{Messages: []gencode.ChatMessage{gencode.UserMessage("Hi")}})
	var llmErr *gencode.ErrLLM
	if !errors.As(err, &llmErr) || llmErr.Provider != "local" {
		t.Fatalf("expected ErrLLM from local, got %v", err)
	}
}

func TestProvider_Name(t *testing.T) {
	if got := NewProvider("k", "m", "http://x").Name(); got != "openai" {
		t.Errorf("default name = %q", got)
	}
	if got := NewProvider("k", "m", "http://x", WithName("ollama")).Name(); got != "ollama" {
		t.Errorf("custom name = %q", got)
	}
}

func TestProvider_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no Authorization header, got %q", auth)
		}
		json.NewEncoder(w).Encode(ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	resp, err := NewProvider("", "m", srv.URL).Chat(context.Background(),
		gencode.ChatRequest{Messages: []gencode.ChatMessage{gencode.UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestProvider_GenerationParamsOverrideOptions(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ChatResponse{})
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithOptions(WithTemperature(0.9), WithMaxTokens(50)))
	temp := 0.2
	_, err := p.Chat(context.Background(), gencode.ChatRequest{
		Messages:         []gencode.ChatMessage{gencode.UserMessage("Hi")},
		GenerationParams: &gencode.GenerationParams{Temperature: &temp},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", got.Temperature)
	}
	if got.MaxTokens != 50 {
		t.Errorf("MaxTokens = %d, want provider default 50", got.MaxTokens)
	}
}
