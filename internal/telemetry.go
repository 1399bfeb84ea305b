package internal

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and meter of a single component.
type Telemetry struct {
	kind string
	name string

	l *Logger

	tracer trace.Tracer
	meter  metric.Meter
}

func NewTelemetry(kind, name string) *Telemetry {
	return &Telemetry{
		kind: kind,
		name: name,

		l: NewLogger(kind, name),

		tracer: otel.GetTracerProvider().Tracer("canweb"),
		meter:  otel.GetMeterProvider().Meter("canweb"),
	}
}

func (t *Telemetry) Logger() *Logger {
	return t.l
}

func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.l.Debug(msg, args...)
}

func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.l.Info(msg, args...)
}

func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.l.Warn(msg, args...)
}

func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.l.Error(msg, err, args...)
}

func (t *Telemetry) setDefaultAttributes(span trace.Span) {
	span.SetAttributes(
		attribute.String("canweb.component_kind", t.kind),
		attribute.String("canweb.component_name", t.name),
	)
}

func (t *Telemetry) NewTrace(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, spanName, opts...)
	t.setDefaultAttributes(span)
	return ctx, span
}

// InjectTrace writes the span context of ctx into carrier
// with the global propagator.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractTrace returns a copy of ctx carrying the remote span context
// read from carrier.
func (t *Telemetry) ExtractTrace(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func (t *Telemetry) getMeterName(name string) string {
	return fmt.Sprintf("%s_%s_%s", t.kind, t.name, name)
}

// NewCounter registers an observable counter whose value is read from fn
// on every collection.
func (t *Telemetry) NewCounter(name string, fn func() int64) {
	counterName := t.getMeterName(name)

	_, err := t.meter.Int64ObservableCounter(counterName,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to create counter", err, "name", counterName)
		return
	}

	t.LogDebug("created counter", "name", counterName)
}

// NewUpDownCounter registers an observable up/down counter whose value is read from fn
// on every collection.
func (t *Telemetry) NewUpDownCounter(name string, fn func() int64) {
	counterName := t.getMeterName(name)

	_, err := t.meter.Int64ObservableUpDownCounter(counterName,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to create up/down counter", err, "name", counterName)
		return
	}

	t.LogDebug("created up/down counter", "name", counterName)
}
