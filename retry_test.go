package gencode

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubProvider is a test Provider that returns pre-configured results in order.
type stubProvider struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	resp ChatResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return ChatResponse{}, nil
}

var _ Provider = (*stubProvider)(nil)

func TestWithRetry_Chat_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Chat_RetriesTransient(t *testing.T) {
	for _, status := range []int{429, 502, 503, 504} {
		stub := &stubProvider{results: []stubResult{
			{err: &ErrHTTP{Status: status, Body: "busy"}},
			{resp: ChatResponse{Content: "hello"}},
		}}
		p := WithRetry(stub, RetryBaseDelay(0))

		resp, err := p.Chat(context.Background(), ChatRequest{})
		if err != nil {
			t.Fatalf("status %d: unexpected error: %v", status, err)
		}
		if resp.Content != "hello" {
			t.Errorf("status %d: got %q, want %q", status, resp.Content, "hello")
		}
		if stub.calls != 2 {
			t.Errorf("status %d: got %d calls, want 2", status, stub.calls)
		}
	}
}

func TestWithRetry_Chat_DoesNotRetryNonTransient(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 400, Body: "bad request"}},
		{resp: ChatResponse{Content: "unreachable"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	_, err := p.Chat(context.Background(), ChatRequest{})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 400 {
		t.Fatalf("expected ErrHTTP 400, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Chat_ExhaustsMaxAttempts(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryMaxAttempts(2))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_Chat_RespectsRetryAfter(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, Body: "rate limited", RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	start := time.Now()
	_, err := p.Chat(context.Background(), ChatRequest{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("retry was too fast: %v, expected at least ~100ms from Retry-After", elapsed)
	}
}

func TestWithRetry_Chat_TimeoutExceeded(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(50*time.Millisecond))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Name(t *testing.T) {
	if got := WithRetry(&stubProvider{}).Name(); got != "stub" {
		t.Errorf("Name() = %q, want %q", got, "stub")
	}
}

func TestWithRetry_Chat_SingleAttemptReturnsPlainError(t *testing.T) {
	stub := &stubProvider{results: []stubResult{{err: &ErrHTTP{Status: 401}}}}
	p := WithRetry(stub, RetryMaxAttempts(1))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if _, ok := err.(*ErrHTTP); !ok {
		t.Fatalf("expected *ErrHTTP, got %T", err)
	}
}
