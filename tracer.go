package gencode

import (
	"context"
	"time"
)

// Tracer starts spans around generation requests and their stages. The
// observer package provides the OTEL-backed implementation.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is one traced operation. End must be called exactly once.
type Span interface {
	SetAttr(attrs ...SpanAttr)
	Event(name string, attrs ...SpanAttr)
	// Error records err and marks the span failed.
	Error(err error)
	End()
}

type SpanAttr struct {
	Key   string
	Value any
}

func StringAttr(k, v string) SpanAttr          { return SpanAttr{Key: k, Value: v} }
func IntAttr(k string, v int) SpanAttr         { return SpanAttr{Key: k, Value: v} }
func BoolAttr(k string, v bool) SpanAttr       { return SpanAttr{Key: k, Value: v} }
func Float64Attr(k string, v float64) SpanAttr { return SpanAttr{Key: k, Value: v} }

// OutcomeAttrs describes an execution result on a span.
func OutcomeAttrs(out ExecutionOutcome) []SpanAttr {
	return []SpanAttr{
		BoolAttr("succeeded", out.Succeeded),
		StringAttr("outcome", out.Kind.String()),
		Float64Attr("exec_ms", float64(out.Duration)/float64(time.Millisecond)),
	}
}

type spanKey struct{}

// StartSpan starts a span on t and stores it in the returned context. A nil
// t yields a span that discards everything, so callers never nil-check.
func StartSpan(ctx context.Context, t Tracer, name string, attrs ...SpanAttr) (context.Context, Span) {
	if t == nil {
		return ctx, nopSpan{}
	}
	ctx, span := t.Start(ctx, name, attrs...)
	return context.WithValue(ctx, spanKey{}, span), span
}

// SpanFromContext returns the span stored by StartSpan, or a no-op span.
func SpanFromContext(ctx context.Context) Span {
	if s, ok := ctx.Value(spanKey{}).(Span); ok {
		return s
	}
	return nopSpan{}
}

type nopSpan struct{}

func (nopSpan) SetAttr(...SpanAttr)       {}
func (nopSpan) Event(string, ...SpanAttr) {}
func (nopSpan) Error(error)               {}
func (nopSpan) End()                      {}
