package observer

import (
	"context"
	"io"
	"strings"
	"time"

	gencode "github.com/nevindra/gencode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a gencode.Runner with OTEL instrumentation. It
// forwards Guidelines and ExecuteTo to the inner runner when supported.
type ObservedRunner struct {
	inner  gencode.Runner
	inst   *Instruments
	engine string
}

var (
	_ gencode.SinkRunner = (*ObservedRunner)(nil)
	_ gencode.Guide      = (*ObservedRunner)(nil)
)

// WrapRunner returns an instrumented runner. engine names the backend in
// telemetry ("interpreter", "container", "remote").
func WrapRunner(inner gencode.Runner, engine string, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst, engine: engine}
}

// Guidelines returns the inner runner's guidelines, or "" when it has none.
func (o *ObservedRunner) Guidelines() string {
	if g, ok := o.inner.(gencode.Guide); ok {
		return g.Guidelines()
	}
	return ""
}

func (o *ObservedRunner) Execute(ctx context.Context, code string) gencode.ExecutionOutcome {
	return o.observe(ctx, code, func(ctx context.Context) gencode.ExecutionOutcome {
		return o.inner.Execute(ctx, code)
	})
}

// ExecuteTo streams output to sink when the inner runner supports it.
// Otherwise the final text is written to sink after the run.
func (o *ObservedRunner) ExecuteTo(ctx context.Context, code string, sink gencode.OutputSink) gencode.ExecutionOutcome {
	return o.observe(ctx, code, func(ctx context.Context) gencode.ExecutionOutcome {
		if sr, ok := o.inner.(gencode.SinkRunner); ok {
			return sr.ExecuteTo(ctx, code, sink)
		}
		out := o.inner.Execute(ctx, code)
		w := sink.Stdout()
		if !out.Succeeded {
			w = sink.Stderr()
		}
		if out.Text != "" {
			io.WriteString(w, out.Text+"\n")
		}
		return out
	})
}

func (o *ObservedRunner) observe(ctx context.Context, code string, run func(context.Context) gencode.ExecutionOutcome) gencode.ExecutionOutcome {
	ctx, span := o.inst.Tracer.Start(ctx, "code.execute", trace.WithAttributes(
		AttrCodeEngine.String(o.engine),
		AttrCodeLength.Int(len(code)),
	))
	defer span.End()
	start := time.Now()

	out := run(ctx)

	durationMs := float64(time.Since(start).Milliseconds())
	kind := out.Kind.String()
	if !out.Succeeded {
		span.SetStatus(codes.Error, firstLine(out.Text))
	}
	span.SetAttributes(
		AttrCodeOutcome.String(kind),
		AttrCodeOutputLen.Int(len(out.Text)),
	)

	o.inst.Executions.Add(ctx, 1, metric.WithAttributes(
		AttrCodeEngine.String(o.engine),
		AttrCodeOutcome.String(kind),
	))
	o.inst.ExecDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrCodeEngine.String(o.engine),
		attribute.Bool("succeeded", out.Succeeded),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	if !out.Succeeded {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.SetBody(otellog.StringValue("code executed"))
	rec.AddAttributes(
		otellog.String("code.engine", o.engine),
		otellog.String("code.outcome", kind),
		otellog.Int("code.length", len(code)),
		otellog.Int("code.output_length", len(out.Text)),
		otellog.Float64("code.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
