package observer

import (
	"context"
	"errors"
	"fmt"

	gencode "github.com/nevindra/gencode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type otelTracer struct {
	inner trace.Tracer
}

// NewTracer returns a gencode.Tracer for the generator's request spans. It
// uses inst.Tracer, or the global provider when inst is nil.
func NewTracer(inst *Instruments) gencode.Tracer {
	if inst != nil && inst.Tracer != nil {
		return &otelTracer{inner: inst.Tracer}
	}
	return &otelTracer{inner: otel.Tracer(scopeName)}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...gencode.SpanAttr) (context.Context, gencode.Span) {
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(toOTELAttrs(attrs)...))
	return ctx, &otelSpan{inner: span}
}

type otelSpan struct {
	inner trace.Span
}

func (s *otelSpan) SetAttr(attrs ...gencode.SpanAttr) {
	s.inner.SetAttributes(toOTELAttrs(attrs)...)
}

func (s *otelSpan) Event(name string, attrs ...gencode.SpanAttr) {
	s.inner.AddEvent(name, trace.WithAttributes(toOTELAttrs(attrs)...))
}

// Error marks the span failed. A failed execution is described by its
// outcome kind and the first diagnostic line; the full traceback stays in
// the chat, not the trace.
func (s *otelSpan) Error(err error) {
	var execErr *gencode.ExecutionError
	if errors.As(err, &execErr) {
		s.inner.SetAttributes(AttrCodeOutcome.String(execErr.Outcome.Kind.String()))
		s.inner.SetStatus(codes.Error, firstLine(execErr.Outcome.Text))
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.inner.End()
}

func toOTELAttrs(attrs []gencode.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		out[i] = toOTELAttr(a)
	}
	return out
}

func toOTELAttr(a gencode.SpanAttr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	default:
		return attribute.String(a.Key, fmt.Sprintf("%v", v))
	}
}

var (
	_ gencode.Tracer = (*otelTracer)(nil)
	_ gencode.Span   = (*otelSpan)(nil)
)
