package openaicompat

import (
	"errors"
	"testing"

	gencode "github.com/nevindra/gencode"
)

func TestParseResponse_TextResponse(t *testing.T) {
	got, err := ParseResponse("openai", ChatResponse{
		Choices: []Choice{{Message: &ChoiceMessage{Role: "assistant", Content: "print(1)"}, FinishReason: "stop"}},
		Usage:   &Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "print(1)" {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Usage.InputTokens != 10 || got.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v", got.Usage)
	}
}

func TestParseResponse_EmptyChoices(t *testing.T) {
	got, err := ParseResponse("openai", ChatResponse{Usage: &Usage{PromptTokens: 4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "" {
		t.Errorf("expected empty content, got %q", got.Content)
	}
	if got.Usage.InputTokens != 4 {
		t.Errorf("usage should still be reported, got %+v", got.Usage)
	}
}

func TestParseResponse_NoUsage(t *testing.T) {
	got, err := ParseResponse("openai", ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Content: "x"}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Usage != (gencode.Usage{}) {
		t.Errorf("expected zero usage, got %+v", got.Usage)
	}
}

func TestParseResponse_Refusal(t *testing.T) {
	_, err := ParseResponse("groq", ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Refusal: "cannot help"}}}})
	var llmErr *gencode.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
	if llmErr.Provider != "groq" {
		t.Errorf("Provider = %q", llmErr.Provider)
	}
}
