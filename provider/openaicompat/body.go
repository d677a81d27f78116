package openaicompat

import gencode "github.com/nevindra/gencode"

// BuildBody converts chat messages and a model name into an OpenAI-format
// ChatRequest. System messages stay in the messages array as role "system".
// Options are applied in order, so later ones win.
func BuildBody(messages []gencode.ChatMessage, model string, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}

	req := ChatRequest{Model: model, Messages: msgs}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
