// Package mcp exposes the restricted runner and the generate-and-run pipeline
// as Model Context Protocol tools, so assistants can execute code under the
// same allow-list the chat bot uses.
//
// Tools:
//
//	execute_code   run code in the configured runner
//	generate_code  run the full pipeline; the chat transcript is the result
//
// When the runner publishes dialect guidelines they are served as the
// resource gencode://guidelines.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/generate"
)

const guidelinesURI = "gencode://guidelines"

// ExecuteInput is the execute_code argument.
type ExecuteInput struct {
	Code string `json:"code" jsonschema:"source code to run under the capability allow-list"`
}

// ExecuteOutput is the structured execute_code result.
type ExecuteOutput struct {
	Succeeded  bool   `json:"succeeded"`
	Kind       string `json:"kind"`
	Text       string `json:"text"`
	DurationMS int64  `json:"duration_ms"`
}

// GenerateInput is the generate_code argument.
type GenerateInput struct {
	Prompt string `json:"prompt" jsonschema:"natural-language description of the program to write and run"`
}

// GenerateOutput is the structured generate_code result.
type GenerateOutput struct {
	Succeeded bool     `json:"succeeded"`
	Messages  []string `json:"messages"`
}

// Server wraps an MCP server with the gencode tools registered.
type Server struct {
	srv    *sdk.Server
	runner gencode.Runner
	gen    *generate.Generator
	logger *slog.Logger
}

// New creates a server. gen may be nil, in which case only execute_code is
// offered.
func New(name, version string, runner gencode.Runner, gen *generate.Generator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = gencode.NopLogger
	}
	s := &Server{
		srv:    sdk.NewServer(&sdk.Implementation{Name: name, Version: version}, nil),
		runner: runner,
		gen:    gen,
		logger: logger,
	}

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "execute_code",
		Description: "Run a program in a restricted interpreter. Only allow-listed builtins are available; there is no file, network or import access. Returns the printed output or an error diagnostic.",
	}, s.executeCode)

	if gen != nil {
		sdk.AddTool(s.srv, &sdk.Tool{
			Name:        "generate_code",
			Description: "Ask the code model to write a program for the prompt, run it in the restricted interpreter and return every message a chat user would have received.",
		}, s.generateCode)
	}

	if guide, ok := runner.(gencode.Guide); ok && guide.Guidelines() != "" {
		s.srv.AddResource(&sdk.Resource{
			URI:         guidelinesURI,
			Name:        "guidelines",
			Description: "Language rules the runner enforces",
			MIMEType:    "text/plain",
		}, func(_ context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
			return &sdk.ReadResourceResult{Contents: []*sdk.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     guide.Guidelines(),
			}}}, nil
		})
	}
	return s
}

// Serve runs the server over stdin/stdout until the client disconnects or
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.srv.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

func (s *Server) executeCode(ctx context.Context, _ *sdk.CallToolRequest, in ExecuteInput) (*sdk.CallToolResult, ExecuteOutput, error) {
	out := s.runner.Execute(ctx, in.Code)
	s.logger.Info("mcp: execute_code", "succeeded", out.Succeeded, "kind", out.Kind.String(), "duration", out.Duration)

	text := out.Text
	if text == "" && out.Succeeded {
		text = generate.English.NoOutput
	}
	res := &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
		IsError: !out.Succeeded,
	}
	return res, ExecuteOutput{
		Succeeded:  out.Succeeded,
		Kind:       out.Kind.String(),
		Text:       out.Text,
		DurationMS: out.Duration.Milliseconds(),
	}, nil
}

func (s *Server) generateCode(ctx context.Context, _ *sdk.CallToolRequest, in GenerateInput) (*sdk.CallToolResult, GenerateOutput, error) {
	start := time.Now()
	messages := []string{}
	send := func(_ context.Context, text string) error {
		messages = append(messages, text)
		return nil
	}

	err := s.gen.Handle(ctx, generate.Request{Prompt: in.Prompt, ChatID: "mcp"}, send)
	if errors.Is(err, context.Canceled) {
		return nil, GenerateOutput{}, err
	}
	s.logger.Info("mcp: generate_code", "error", err, "messages", len(messages), "duration", time.Since(start))

	content := make([]sdk.Content, 0, len(messages))
	for _, m := range messages {
		content = append(content, &sdk.TextContent{Text: m})
	}
	return &sdk.CallToolResult{Content: content, IsError: err != nil},
		GenerateOutput{Succeeded: err == nil, Messages: messages}, nil
}
