package internal

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func Test_KafkaHeaderCarrier(t *testing.T) {
	assert := assert.New(t)

	khc := NewKafkaHeaderCarrier(kafka.Header{Key: "a", Value: []byte("1")})
	khc.Set("traceparent", "00-abc")
	khc.Set("a", "2")

	assert.Equal("2", khc.Get("a"))
	assert.Equal("00-abc", khc.Get("traceparent"))
	assert.Equal("", khc.Get("missing"))
	assert.ElementsMatch([]string{"a", "traceparent"}, khc.Keys())
	assert.Len(khc.Headers(), 2)
}

func Test_Telemetry_TracePropagation(t *testing.T) {
	assert := assert.New(t)

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	tel := NewTelemetry("test", "carrier")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	khc := NewKafkaHeaderCarrier()
	tel.InjectTrace(ctx, khc)
	assert.NotEmpty(khc.Get("traceparent"))

	extracted := trace.SpanContextFromContext(tel.ExtractTrace(context.Background(), khc))
	assert.Equal(traceID, extracted.TraceID())
	assert.Equal(spanID, extracted.SpanID())
}
