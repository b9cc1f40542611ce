package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_WithoutTracer(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Nil(t, GetActiveSpan(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}

func TestSetup(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	provider, err := Setup(ctx, "fern-test", "dev", exporter, 1)
	require.NoError(t, err)
	defer SetTracer(nil)

	spanCtx, span := StartSpan(ctx, "linker.Linker.LinkDocument")
	assert.Len(t, GetTraceID(spanCtx), 32)
	assert.Len(t, GetSpanID(spanCtx), 16)
	span.End()

	require.NoError(t, provider.ForceFlush(ctx))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "linker.Linker.LinkDocument", spans[0].Name)
	require.NoError(t, provider.Shutdown(ctx))
}
