package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{ServiceName: "test", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	ctx, span := tracer.StartSpan(context.Background(), "test-span")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "test-span")
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample(), createSampler(1.0))
	assert.Equal(t, sdktrace.AlwaysSample(), createSampler(1.5))
	assert.Equal(t, sdktrace.NeverSample(), createSampler(0))
	assert.Equal(t, sdktrace.NeverSample(), createSampler(-1))
	assert.NotNil(t, createSampler(0.5))
}

func TestSpanFromContext(t *testing.T) {
	assert.NotNil(t, SpanFromContext(context.Background()))
}
