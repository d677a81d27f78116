package openaicompat

import (
	"fmt"

	gencode "github.com/nevindra/gencode"
)

// ParseResponse converts an OpenAI-format ChatResponse to a
// gencode.ChatResponse using choices[0]. A refusal is reported as an error
// so the caller does not mistake it for generated code.
func ParseResponse(name string, resp ChatResponse) (gencode.ChatResponse, error) {
	var out gencode.ChatResponse
	if resp.Usage != nil {
		out.Usage = gencode.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message == nil {
		return out, nil
	}
	if choice.Message.Refusal != "" && choice.Message.Content == "" {
		return out, &gencode.ErrLLM{Provider: name, Message: fmt.Sprintf("refused: %s", choice.Message.Refusal)}
	}
	out.Content = choice.Message.Content
	return out, nil
}
