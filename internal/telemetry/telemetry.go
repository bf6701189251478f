// Package telemetry records pipeline counters and stage spans through
// OpenTelemetry. A nil *Recorder is valid and records nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

const instrumentationName = "github.com/custodia-labs/lorastudio"

// Metric names.
const (
	MetricRunTransitions    = "lorastudio_run_transitions_total"
	MetricRunFailures       = "lorastudio_run_failures_total"
	MetricDocumentsIngested = "lorastudio_documents_ingested_total"
)

// Recorder holds the pipeline instruments.
type Recorder struct {
	transitions metric.Int64Counter
	failures    metric.Int64Counter
	ingested    metric.Int64Counter
	tracer      trace.Tracer
}

// NewRecorder creates instruments on the given providers.
func NewRecorder(mp metric.MeterProvider, tp trace.TracerProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)

	transitions, err := meter.Int64Counter(MetricRunTransitions,
		metric.WithDescription("Training run state transitions by target state"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricRunTransitions, err)
	}
	failures, err := meter.Int64Counter(MetricRunFailures,
		metric.WithDescription("Training runs that ended in FAILED"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricRunFailures, err)
	}
	ingested, err := meter.Int64Counter(MetricDocumentsIngested,
		metric.WithDescription("Ingested documents by resulting status"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricDocumentsIngested, err)
	}

	return &Recorder{
		transitions: transitions,
		failures:    failures,
		ingested:    ingested,
		tracer:      tp.Tracer(instrumentationName),
	}, nil
}

// Global creates a Recorder on the process-wide OpenTelemetry providers.
func Global() *Recorder {
	r, err := NewRecorder(otel.GetMeterProvider(), otel.GetTracerProvider())
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		return nil
	}
	return r
}

// RunTransition counts a transition into state.
func (r *Recorder) RunTransition(ctx context.Context, state domain.RunState) {
	if r == nil {
		return
	}
	r.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

// RunFailure counts a run entering FAILED.
func (r *Recorder) RunFailure(ctx context.Context) {
	if r == nil {
		return
	}
	r.failures.Add(ctx, 1)
}

// DocumentIngested counts an ingested document by status.
func (r *Recorder) DocumentIngested(ctx context.Context, status domain.DocumentStatus) {
	if r == nil {
		return
	}
	r.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// StartSpan starts a span named name. Always returns a usable span.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Option configures Init.
type Option func(*initOptions)

type initOptions struct {
	readers []sdkmetric.Reader
}

// WithMetricReader registers an additional metric reader on the installed
// meter provider.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *initOptions) {
		o.readers = append(o.readers, r)
	}
}

// Init installs the process tracer and meter providers. Spans and counters
// are exported to stdout only when cfg.TraceStdout or cfg.MetricsStdout is
// set. The returned func flushes and shuts both providers down.
func Init(ctx context.Context, cfg domain.TelemetryConfig, opts ...Option) (func(context.Context) error, error) {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "lorastudio"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		logger.Warn("otel resource init failed (continuing)", "error", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceStdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithSyncer(exp))
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range o.readers {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	if cfg.MetricsStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		readerOpts := []sdkmetric.PeriodicReaderOption{}
		if cfg.MetricsInterval > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricsInterval))
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	mp := sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	logger.Debug("otel initialized",
		"service", serviceName,
		"trace_stdout", cfg.TraceStdout,
		"metrics_stdout", cfg.MetricsStdout,
	)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
