package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
)

func TestAttributeAllowed(t *testing.T) {
	t.Parallel()

	for key, want := range map[string]bool{
		"codemerge.lines.left": true,
		"merge.conflicts":      true,
		"error.type":           true,
		"error":                true,
		"http.target":          true,
		"mcp.tool":             true,
		"line.text":            false,
		"user.email":           false,
	} {
		assert.Equal(t, want, observability.AttributeAllowed(key), key)
	}
}

func TestAttributeFilter_StripsUnknownKeys(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(
		observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter)),
	))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	_, span := tp.Tracer("test").Start(context.Background(), observability.SpanMerge)
	span.SetAttributes(
		attribute.Int("codemerge.lines.left", 10),
		attribute.String("line.text", "secret"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	keys := make([]string, 0, len(spans[0].Attributes))
	for _, kv := range spans[0].Attributes {
		keys = append(keys, string(kv.Key))
	}

	assert.Equal(t, []string{"codemerge.lines.left"}, keys)
}

func TestFilteringTracerProvider_DropsAlignSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	sdk := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, sdk.Shutdown(context.Background())) })

	tracer := observability.NewFilteringTracerProvider(sdk).Tracer("test")

	ctx, parent := tracer.Start(context.Background(), observability.SpanMerge3)
	_, child := tracer.Start(ctx, observability.SpanAlign)
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, observability.SpanMerge3, spans[0].Name)
}
