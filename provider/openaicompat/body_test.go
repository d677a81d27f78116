package openaicompat

import (
	"testing"

	gencode "github.com/nevindra/gencode"
)

func TestBuildBody_SystemMessages(t *testing.T) {
	req := BuildBody([]gencode.ChatMessage{
		gencode.SystemMessage("Only code."),
		gencode.UserMessage("Hello"),
	}, "qwen2.5-coder-7b")

	if req.Model != "qwen2.5-coder-7b" {
		t.Errorf("Model = %q", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "Only code." {
		t.Errorf("unexpected system message: %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("expected user role, got %q", req.Messages[1].Role)
	}
}

func TestBuildBody_EmptyRoleIsUser(t *testing.T) {
	req := BuildBody([]gencode.ChatMessage{{Content: "hi"}}, "m")
	if req.Messages[0].Role != "user" {
		t.Errorf("Role = %q, want user", req.Messages[0].Role)
	}
}

func TestBuildBody_OptionsApplyInOrder(t *testing.T) {
	req := BuildBody(nil, "m", WithTemperature(0.5), WithMaxTokens(100), WithTemperature(0.1), WithStop("```"), WithSeed(7))

	if req.Temperature == nil || *req.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", req.Temperature)
	}
	if req.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
	if len(req.Stop) != 1 || req.Stop[0] != "```" {
		t.Errorf("Stop = %v", req.Stop)
	}
	if req.Seed == nil || *req.Seed != 7 {
		t.Errorf("Seed = %v", req.Seed)
	}
	if req.TopP != nil {
		t.Errorf("TopP should be unset, got %v", *req.TopP)
	}
}
