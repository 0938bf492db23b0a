package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

func newRecordingProvider(t *testing.T) (*SimpleProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg := &config.ObservabilityConfig{ServiceName: "test-host", ServiceVersion: "9.9.9"}
	return NewSimpleProviderWithTracer(tp.Tracer(TracerName), cfg, logging.Discard()), recorder
}

func attrs(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestSpanSuccess(t *testing.T) {
	p, recorder := newRecordingProvider(t)

	_, span := p.StartSpan(context.Background(), "tools/call", SpanTypeTool, `{"a":1}`, map[string]string{"tool": "add"})
	p.SetOutput(span, "3")
	p.SetDuration(span, 5*time.Millisecond)
	p.RecordSuccess(span, "ok")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tools/call", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	a := attrs(spans[0].Attributes())
	assert.Equal(t, SpanTypeTool, a["span.type"].AsString())
	assert.Equal(t, "add", a["tool"].AsString())
	assert.Equal(t, "3", a["output.value"].AsString())
	assert.Equal(t, int64(5), a["duration.milliseconds"].AsInt64())
}

func TestSpanError(t *testing.T) {
	p, recorder := newRecordingProvider(t)

	_, span := p.StartTrace(context.Background(), "resources/read", "file:///notes.txt", nil)
	p.RecordError(span, errors.New("denied"), "access_denied")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	a := attrs(spans[0].Attributes())
	assert.Equal(t, "test-host", a["service.name"].AsString())
	assert.Equal(t, "access_denied", a["error.level"].AsString())
}

func TestDisabledHandler(t *testing.T) {
	h := NewTracingHandler(&config.Config{}, logging.Discard())
	assert.False(t, h.IsEnabled())
	assert.Equal(t, ProviderDisabled, h.GetProvider())

	ctx := context.Background()
	got, span := h.StartSpan(ctx, "x", SpanTypeTool, "", nil)
	assert.Equal(t, ctx, got)
	assert.False(t, span.SpanContext().IsValid())
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), &config.ObservabilityConfig{}, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
