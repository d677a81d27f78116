// Package generate turns a natural-language prompt into code, runs it in a
// restricted runner and reports the result as chat messages.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/extract"
)

// Tag identifies generation requests in logs and telemetry.
const Tag = "plugin.generate_code"

// maxRecordedOutput caps the output kept in history.
const maxRecordedOutput = 4096

// Request is one /generate_code invocation.
type Request struct {
	Prompt string
	ChatID string
}

// Artifact is the model output and the code extracted from it.
type Artifact struct {
	Raw  string
	Code string
}

// SendFunc delivers one message to the requester.
type SendFunc func(ctx context.Context, text string) error

// Stage is the position of a request in the pipeline.
type Stage int

const (
	StageAwaitingPrompt Stage = iota
	StageGenerating
	StageExtracting
	StageExecuting
	StageReporting
	StageDone
)

var stageNames = [...]string{"awaiting_prompt", "generating", "extracting", "executing", "reporting", "done"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Generator runs the generate-and-run pipeline. It is safe for concurrent
// use when its provider and runner are.
type Generator struct {
	provider gencode.Provider
	runner   gencode.Runner
	cfg      config
}

// New creates a Generator.
func New(provider gencode.Provider, runner gencode.Runner, opts ...Option) *Generator {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Generator{provider: provider, runner: runner, cfg: cfg}
}

// Catalog returns the message catalog in use.
func (g *Generator) Catalog() Catalog { return g.cfg.catalog }

// Generate asks the provider for code and extracts it. A provider error is
// returned as is; an empty extraction yields *GenerationError with Empty set.
func (g *Generator) Generate(ctx context.Context, prompt string) (Artifact, error) {
	req := gencode.ChatRequest{Tag: g.cfg.tag}
	if g.cfg.guidelines {
		if guide, ok := g.runner.(gencode.Guide); ok {
			if text := guide.Guidelines(); text != "" {
				req.Messages = append(req.Messages, gencode.SystemMessage(text))
			}
		}
	}
	req.Messages = append(req.Messages, gencode.UserMessage(g.cfg.catalog.instruction(prompt)))
	if g.cfg.temperature != nil || g.cfg.maxTokens != nil {
		req.GenerationParams = &gencode.GenerationParams{
			Temperature: g.cfg.temperature,
			MaxTokens:   g.cfg.maxTokens,
		}
	}

	resp, err := g.provider.Chat(ctx, req)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{Raw: resp.Content, Code: extract.Code(resp.Content, g.cfg.language)}
	if art.Code == "" {
		return art, &GenerationError{Empty: true}
	}
	return art, nil
}

// Handle runs one request end to end, reporting progress through send:
//
//	usage                      (empty prompt; returns ErrUsage)
//	ack -> failure             (provider error or no code; returns *GenerationError)
//	ack -> code -> result      (returns nil or *gencode.ExecutionError)
//
// Exactly one terminal message follows the acknowledgement. When ctx is
// cancelled mid-flight nothing further is sent and ctx.Err() is returned.
func (g *Generator) Handle(ctx context.Context, req Request, send SendFunc) (err error) {
	id := gencode.NewID()
	start := time.Now()
	log := g.cfg.logger.With("request", id, "chat", req.ChatID)
	cat := g.cfg.catalog

	run := gencode.Run{
		ID:        id,
		ChatID:    req.ChatID,
		Tag:       g.cfg.tag,
		Prompt:    strings.TrimSpace(req.Prompt),
		CreatedAt: start.Unix(),
	}
	if g.cfg.history != nil {
		defer func() { g.record(ctx, log, run, err, start) }()
	}

	ctx, span := gencode.StartSpan(ctx, g.cfg.tracer, "generate.handle",
		gencode.StringAttr("request", id),
		gencode.StringAttr("tag", g.cfg.tag),
		gencode.StringAttr("chat", req.ChatID))
	defer span.End()

	prompt := strings.TrimSpace(req.Prompt)
	g.enter(ctx, log, req, StageAwaitingPrompt)
	if prompt == "" {
		if err := send(ctx, cat.Usage); err != nil {
			return fmt.Errorf("generate: send usage: %w", err)
		}
		return ErrUsage
	}
	if err := send(ctx, cat.ack(prompt)); err != nil {
		return fmt.Errorf("generate: send ack: %w", err)
	}

	g.enter(ctx, log, req, StageGenerating)
	art, err := g.Generate(ctx, prompt)
	run.Code = art.Code
	if ctx.Err() != nil {
		log.Info("generate: cancelled", "stage", StageGenerating.String())
		return ctx.Err()
	}
	var genErr *GenerationError
	if err == nil || errors.As(err, &genErr) {
		g.enter(ctx, log, req, StageExtracting)
	}
	if err != nil {
		text := cat.InvalidCode
		if genErr == nil {
			genErr = &GenerationError{Err: err}
			text = cat.GenerationFailed
		}
		log.Warn("generate: no code", "error", err, "raw_len", len(art.Raw))
		g.enter(ctx, log, req, StageReporting)
		if sendErr := send(ctx, text); sendErr != nil {
			return errors.Join(genErr, fmt.Errorf("generate: send failure: %w", sendErr))
		}
		g.enter(ctx, log, req, StageDone)
		span.Error(genErr)
		return genErr
	}

	span.SetAttr(gencode.IntAttr("code_bytes", len(art.Code)))
	if err := send(ctx, cat.codeDisplay(art.Code)); err != nil {
		return fmt.Errorf("generate: send code: %w", err)
	}

	g.enter(ctx, log, req, StageExecuting)
	out := g.runner.Execute(ctx, art.Code)
	run.Kind, run.Output = out.Kind, out.Text
	if ctx.Err() != nil {
		log.Info("generate: cancelled", "stage", StageExecuting.String())
		return ctx.Err()
	}

	g.enter(ctx, log, req, StageReporting)
	text := cat.success(out.Text)
	if !out.Succeeded {
		text = cat.failure(out.Text)
	}
	if err := send(ctx, text); err != nil {
		return fmt.Errorf("generate: send result: %w", err)
	}
	g.enter(ctx, log, req, StageDone)
	log.Info("generate: done",
		"succeeded", out.Succeeded, "kind", out.Kind.String(),
		"exec_duration", out.Duration, "total_duration", time.Since(start))
	span.SetAttr(gencode.OutcomeAttrs(out)...)
	if err := out.Err(); err != nil {
		span.Error(err)
	}
	return out.Err()
}

// record saves the finished request to the history store. A cancelled
// request is still recorded.
func (g *Generator) record(ctx context.Context, log *slog.Logger, run gencode.Run, err error, start time.Time) {
	run.Status = statusOf(ctx, err)
	run.DurationMs = time.Since(start).Milliseconds()
	if len(run.Output) > maxRecordedOutput {
		run.Output = strings.ToValidUTF8(run.Output[:maxRecordedOutput], "")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.cfg.history.SaveRun(ctx, run); err != nil {
		log.Warn("generate: save run failed", "error", err)
	}
}

func statusOf(ctx context.Context, err error) gencode.RunStatus {
	var genErr *GenerationError
	var execErr *gencode.ExecutionError
	switch {
	case err == nil:
		return gencode.RunOK
	case errors.Is(err, ErrUsage):
		return gencode.RunUsage
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return gencode.RunCancelled
	case errors.As(err, &genErr):
		if genErr.Empty {
			return gencode.RunNoCode
		}
		return gencode.RunGenerationFailed
	case errors.As(err, &execErr):
		return gencode.RunExecutionFailed
	default:
		return gencode.RunSendFailed
	}
}

func (g *Generator) enter(ctx context.Context, log *slog.Logger, req Request, s Stage) {
	log.Debug("generate: stage", "stage", s.String())
	gencode.SpanFromContext(ctx).Event("stage", gencode.StringAttr("stage", s.String()))
	if g.cfg.onStage != nil {
		g.cfg.onStage(req, s)
	}
}
