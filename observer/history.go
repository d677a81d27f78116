package observer

import (
	"context"

	gencode "github.com/nevindra/gencode"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// RunSaver receives finished requests. gencode.RunStore implementations
// satisfy it.
type RunSaver interface {
	SaveRun(ctx context.Context, run gencode.Run) error
}

// ObservedRecorder counts finished requests by status and forwards them to
// an optional store.
type ObservedRecorder struct {
	next RunSaver
	inst *Instruments
}

// WrapRecorder returns a recorder for generate.WithHistory. next may be nil
// when history is not persisted.
func WrapRecorder(next RunSaver, inst *Instruments) *ObservedRecorder {
	return &ObservedRecorder{next: next, inst: inst}
}

func (o *ObservedRecorder) SaveRun(ctx context.Context, run gencode.Run) error {
	attrs := metric.WithAttributes(
		AttrLLMTag.String(run.Tag),
		AttrRunStatus.String(string(run.Status)),
	)
	o.inst.Runs.Add(ctx, 1, attrs)
	o.inst.RunDuration.Record(ctx, float64(run.DurationMs), attrs)

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	if run.Status != gencode.RunOK && run.Status != gencode.RunUsage {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.SetBody(otellog.StringValue("generate_code finished"))
	rec.AddAttributes(
		otellog.String("run.id", run.ID),
		otellog.String("run.status", string(run.Status)),
		otellog.String("chat.id", run.ChatID),
		otellog.Int("code.length", len(run.Code)),
		otellog.Int64("run.duration_ms", run.DurationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	if o.next == nil {
		return nil
	}
	return o.next.SaveRun(ctx, run)
}
