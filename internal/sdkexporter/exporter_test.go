package sdkexporter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
)

type captureSender struct {
	payloads [][]byte
	err      error
}

func (c *captureSender) Send(_ context.Context, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, append([]byte(nil), payload...))
	return nil
}

func newTestProvider(t *testing.T, exp sdktrace.SpanExporter, res *resource.Resource) *sdktrace.TracerProvider {
	t.Helper()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp
}

func TestExportThroughTracerProvider(t *testing.T) {
	sender := &captureSender{}
	opts := spanencoder.DefaultOptions()
	opts.Limits.SpanAttributes = 2

	exp, err := New(sender, opts, zap.NewNop())
	require.NoError(t, err)

	tp := newTestProvider(t, exp, resource.NewSchemaless(attribute.String("service.name", "sdk-test")))
	tracer := tp.Tracer("sdkexporter_test")

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")
	child.SetAttributes(
		attribute.String("a", "1"),
		attribute.String("b", "2"),
		attribute.String("c", "3"),
	)
	child.AddEvent("checkpoint")
	child.SetStatus(codes.Error, "bad input")
	child.End()
	parent.End()

	require.Len(t, sender.payloads, 2)

	td, err := (&ptrace.ProtoUnmarshaler{}).UnmarshalTraces(sender.payloads[0])
	require.NoError(t, err)
	require.Equal(t, 1, td.ResourceSpans().Len())
	rs := td.ResourceSpans().At(0)
	name, ok := rs.Resource().Attributes().Get("service.name")
	require.True(t, ok)
	assert.Equal(t, "sdk-test", name.Str())

	require.Equal(t, 1, rs.ScopeSpans().Len())
	assert.Equal(t, "sdkexporter_test", rs.ScopeSpans().At(0).Scope().Name())
	span := rs.ScopeSpans().At(0).Spans().At(0)
	assert.Equal(t, "child", span.Name())
	assert.Equal(t, ptrace.SpanKindInternal, span.Kind())
	assert.Equal(t, 2, span.Attributes().Len())
	assert.EqualValues(t, 1, span.DroppedAttributesCount())
	assert.Equal(t, 1, span.Events().Len())
	assert.Equal(t, ptrace.StatusCodeError, span.Status().Code())
	assert.Equal(t, "bad input", span.Status().Message())
	assert.False(t, span.ParentSpanID().IsEmpty())

	td, err = (&ptrace.ProtoUnmarshaler{}).UnmarshalTraces(sender.payloads[1])
	require.NoError(t, err)
	parentSpan := td.ResourceSpans().At(0).ScopeSpans().At(0).Spans().At(0)
	assert.Equal(t, "parent", parentSpan.Name())
	assert.Equal(t, span.ParentSpanID(), parentSpan.SpanID())
	assert.True(t, parentSpan.ParentSpanID().IsEmpty())
}

func TestExportSpansSendError(t *testing.T) {
	sendErr := errors.New("unreachable")
	exp, err := New(&captureSender{err: sendErr}, spanencoder.DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(resource.Empty()))
	_, span := tp.Tracer("t").Start(context.Background(), "op")
	span.End()
	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)

	err = exp.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{ro})
	assert.ErrorIs(t, err, sendErr)
}

func TestExportEmptyDoesNotSend(t *testing.T) {
	sender := &captureSender{}
	exp, err := New(sender, spanencoder.DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, exp.ExportSpans(context.Background(), nil))
	assert.Empty(t, sender.payloads)
}

func TestShutdown(t *testing.T) {
	exp, err := New(&captureSender{}, spanencoder.DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.Shutdown(context.Background()))
	assert.ErrorIs(t, exp.ExportSpans(context.Background(), nil), ErrShutdown)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, spanencoder.DefaultOptions(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(SenderFunc(func(context.Context, []byte) error { return nil }),
		spanencoder.Options{Limits: spanencoder.Limits{Links: -1}}, zap.NewNop())
	assert.ErrorIs(t, err, spanencoder.ErrInvalidLimit)
}
