package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Settings{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	assert.IsType(t, tracenoop.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, metricnoop.MeterProvider{}, otel.GetMeterProvider())

	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInit_Enabled(t *testing.T) {
	t.Cleanup(func() {
		_, _ = Init(context.Background(), Settings{})
	})

	shutdown, err := Init(context.Background(), Settings{Enabled: true, Version: "test"})
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	_, span := Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := Meter("test").Int64Counter("test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, shutdown(context.Background()))
}
