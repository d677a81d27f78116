// Package observer provides OTEL-based observability for code generation and
// execution.
//
// It wraps gencode.Provider and gencode.Runner with instrumented versions that
// emit traces, metrics and logs via OpenTelemetry. Export to any
// OTEL-compatible backend by setting the standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/gencode/observer"

// Histogram boundaries in ms. Sandboxed runs are bounded by a timeout of
// seconds; model calls take seconds to minutes.
var (
	execBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}
	llmBuckets  = []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 60000, 120000}
)

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	TokenUsage  metric.Int64Counter
	CostTotal   metric.Float64Counter
	LLMRequests metric.Int64Counter
	LLMDuration metric.Float64Histogram

	Executions   metric.Int64Counter
	ExecDuration metric.Float64Histogram

	Runs        metric.Int64Counter
	RunDuration metric.Float64Histogram

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, service string, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	if service == "" {
		service = "gencode"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(service)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}
	return inst, shutdown, nil
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	meter := otel.Meter(scopeName)
	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.GetLoggerProvider().Logger(scopeName),
		Cost:   NewCostCalculator(pricing),
	}

	var err error
	if inst.TokenUsage, err = meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if inst.CostTotal, err = meter.Float64Counter("llm.cost.total",
		metric.WithDescription("Cumulative LLM cost in USD"),
		metric.WithUnit("USD")); err != nil {
		return nil, err
	}
	if inst.LLMRequests, err = meter.Int64Counter("llm.requests",
		metric.WithDescription("LLM request count"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if inst.LLMDuration, err = meter.Float64Histogram("llm.duration",
		metric.WithDescription("LLM call duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(llmBuckets...)); err != nil {
		return nil, err
	}
	if inst.Executions, err = meter.Int64Counter("code.executions",
		metric.WithDescription("Restricted code execution count"),
		metric.WithUnit("{execution}")); err != nil {
		return nil, err
	}
	if inst.ExecDuration, err = meter.Float64Histogram("code.duration",
		metric.WithDescription("Restricted code execution duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(execBuckets...)); err != nil {
		return nil, err
	}
	if inst.Runs, err = meter.Int64Counter("gencode.runs",
		metric.WithDescription("Finished /generate_code requests by status"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if inst.RunDuration, err = meter.Float64Histogram("gencode.run.duration",
		metric.WithDescription("End-to-end /generate_code duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(llmBuckets...)); err != nil {
		return nil, err
	}
	return inst, nil
}
