package spanencodeexporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/component/componenttest"
	"go.opentelemetry.io/collector/exporter"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
)

// fakeCollector records decoded requests and answers with a settable status.
type fakeCollector struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []ptrace.Traces
}

func newFakeCollector(t *testing.T) *fakeCollector {
	t.Helper()
	fc := &fakeCollector{status: http.StatusOK}
	fc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		if fc.status != http.StatusOK {
			w.WriteHeader(fc.status)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		td, err := (&ptrace.ProtoUnmarshaler{}).UnmarshalTraces(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fc.requests = append(fc.requests, td)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(fc.Close)
	return fc
}

func (fc *fakeCollector) setStatus(status int) {
	fc.mu.Lock()
	fc.status = status
	fc.mu.Unlock()
}

func (fc *fakeCollector) received() []ptrace.Traces {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]ptrace.Traces(nil), fc.requests...)
}

func testSettings() exporter.Settings {
	return exporter.Settings{
		ID:                component.NewID(component.MustNewType(typeStr)),
		TelemetrySettings: componenttest.NewNopTelemetrySettings(),
		BuildInfo:         component.NewDefaultBuildInfo(),
	}
}

func testConfig(endpoint string) *Config {
	cfg := createDefaultConfig().(*Config)
	cfg.Endpoint = endpoint
	cfg.Compression = "none"
	cfg.Timeout = 5 * time.Second
	return cfg
}

// generateTraces builds two resources with spans in two scopes each.
func generateTraces() ptrace.Traces {
	td := ptrace.NewTraces()
	for r, service := range []string{"frontend", "backend"} {
		rs := td.ResourceSpans().AppendEmpty()
		rs.Resource().Attributes().PutStr("service.name", service)
		for s, scope := range []string{"http", "db"} {
			ss := rs.ScopeSpans().AppendEmpty()
			ss.Scope().SetName(scope)
			for i := 0; i < 3; i++ {
				span := ss.Spans().AppendEmpty()
				span.SetName(scope + "-op")
				span.SetTraceID(pcommon.TraceID{byte(r + 1), byte(s + 1), byte(i + 1)})
				span.SetSpanID(pcommon.SpanID{byte(r + 1), byte(s + 1), byte(i + 1)})
				span.SetStartTimestamp(pcommon.Timestamp(1000 + i))
				span.SetEndTimestamp(pcommon.Timestamp(2000 + i))
				for a := 0; a < 4; a++ {
					span.Attributes().PutInt(string(rune('a'+a)), int64(a))
				}
			}
		}
	}
	return td
}

func countSpans(td ptrace.Traces) int {
	n := 0
	for i := 0; i < td.ResourceSpans().Len(); i++ {
		sss := td.ResourceSpans().At(i).ScopeSpans()
		for j := 0; j < sss.Len(); j++ {
			n += sss.At(j).Spans().Len()
		}
	}
	return n
}

func TestExportThroughFactory(t *testing.T) {
	fc := newFakeCollector(t)
	cfg := testConfig(fc.URL)
	limit := 2
	cfg.Limits.SpanAttributes = &limit

	exp, err := NewFactory().CreateTraces(context.Background(), testSettings(), cfg)
	require.NoError(t, err)
	require.NoError(t, exp.Start(context.Background(), componenttest.NewNopHost()))
	defer func() {
		require.NoError(t, exp.Shutdown(context.Background()))
	}()

	require.NoError(t, exp.ConsumeTraces(context.Background(), generateTraces()))

	reqs := fc.received()
	require.Len(t, reqs, 1)
	got := reqs[0]
	require.Equal(t, 2, got.ResourceSpans().Len())
	assert.Equal(t, 12, countSpans(got))

	for i, service := range []string{"frontend", "backend"} {
		rs := got.ResourceSpans().At(i)
		name, ok := rs.Resource().Attributes().Get("service.name")
		require.True(t, ok)
		assert.Equal(t, service, name.Str())
		require.Equal(t, 2, rs.ScopeSpans().Len())
		span := rs.ScopeSpans().At(0).Spans().At(0)
		assert.Equal(t, 2, span.Attributes().Len())
		assert.EqualValues(t, 2, span.DroppedAttributesCount())
	}
}

func TestConsumeTracesRecordsMetrics(t *testing.T) {
	fc := newFakeCollector(t)
	cfg := testConfig(fc.URL)
	limit := 1
	cfg.Limits.SpanAttributes = &limit

	e, err := newSpanEncodeExporter(componenttest.NewNopTelemetrySettings(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background(), componenttest.NewNopHost()))
	defer func() { require.NoError(t, e.Shutdown(context.Background())) }()

	require.NoError(t, e.consumeTraces(context.Background(), generateTraces()))
	require.NoError(t, e.consumeTraces(context.Background(), generateTraces()))

	assert.Equal(t, int64(24), e.metrics.exportedSpans.Load())
	assert.Equal(t, int64(24*3), e.metrics.droppedAttributes.Load())
	assert.Positive(t, e.metrics.encodedBytes.Load())
	assert.Zero(t, e.metrics.sendFailures.Load())
	assert.Len(t, fc.received(), 2)
}

func TestConsumeEmptyTracesSendsNothing(t *testing.T) {
	fc := newFakeCollector(t)
	e, err := newSpanEncodeExporter(componenttest.NewNopTelemetrySettings(), testConfig(fc.URL))
	require.NoError(t, err)

	td := ptrace.NewTraces()
	td.ResourceSpans().AppendEmpty().ScopeSpans().AppendEmpty()
	require.NoError(t, e.consumeTraces(context.Background(), td))
	assert.Empty(t, fc.received())
}

func TestNonRetryableFailureIsReturned(t *testing.T) {
	fc := newFakeCollector(t)
	fc.setStatus(http.StatusBadRequest)
	cfg := testConfig(fc.URL)
	cfg.Spool.Path = filepath.Join(t.TempDir(), "spool.db")

	e, err := newSpanEncodeExporter(componenttest.NewNopTelemetrySettings(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background(), componenttest.NewNopHost()))
	defer func() { require.NoError(t, e.Shutdown(context.Background())) }()

	err = e.consumeTraces(context.Background(), generateTraces())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Zero(t, e.spool.Len())
	assert.Equal(t, int64(1), e.metrics.sendFailures.Load())
}

func TestRetryableFailureIsSpooledAndReplayed(t *testing.T) {
	fc := newFakeCollector(t)
	fc.setStatus(http.StatusServiceUnavailable)
	cfg := testConfig(fc.URL)
	cfg.Spool.Path = filepath.Join(t.TempDir(), "spool.db")
	cfg.Spool.ReplaySchedule = "@every 1h"

	e, err := newSpanEncodeExporter(componenttest.NewNopTelemetrySettings(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background(), componenttest.NewNopHost()))
	defer func() { require.NoError(t, e.Shutdown(context.Background())) }()

	require.NoError(t, e.consumeTraces(context.Background(), generateTraces()))
	require.NoError(t, e.consumeTraces(context.Background(), generateTraces()))
	assert.Equal(t, 2, e.spool.Len())
	assert.Equal(t, int64(2), e.metrics.spooledPayloads.Load())

	// Still failing: nothing is lost.
	e.replay()
	assert.Equal(t, 2, e.spool.Len())
	assert.Zero(t, e.metrics.replayedPayloads.Load())

	fc.setStatus(http.StatusOK)
	e.replay()
	assert.Zero(t, e.spool.Len())
	assert.Equal(t, int64(2), e.metrics.replayedPayloads.Load())

	reqs := fc.received()
	require.Len(t, reqs, 2)
	for _, td := range reqs {
		assert.Equal(t, 12, countSpans(td))
	}
}

func TestNewExporterRejectsBadLimits(t *testing.T) {
	cfg := testConfig("http://localhost:4318/v1/traces")
	limit := -1
	cfg.Limits.Links = &limit

	_, err := newSpanEncodeExporter(componenttest.NewNopTelemetrySettings(), cfg)
	assert.ErrorIs(t, err, spanencoder.ErrInvalidLimit)
}
