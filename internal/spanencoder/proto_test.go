package spanencoder

import (
	"strings"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
)

func strValue(s string) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}}
}

// richSpanProto is richSpan(id) built with the generated OTLP types.
func richSpanProto(id uint64) *tracepb.Span {
	s := richSpan(id)
	return &tracepb.Span{
		TraceId:           s.TraceID[:],
		SpanId:            s.SpanID[:],
		TraceState:        s.TraceState,
		ParentSpanId:      s.ParentSpanID[:],
		Name:              s.Name,
		Kind:              tracepb.Span_SPAN_KIND_SERVER,
		StartTimeUnixNano: s.StartUnixNs,
		EndTimeUnixNano:   s.EndUnixNs,
		Attributes: []*commonpb.KeyValue{
			{Key: "http.method", Value: strValue("GET")},
			{Key: "http.url", Value: strValue(strings.Repeat("/päth", 40))},
			{Key: "http.status_code", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: -1}}},
			{Key: "cache.hit", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: false}}},
			{Key: "ratio", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: 0.25}}},
			{Key: "tags", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_ArrayValue{ArrayValue: &commonpb.ArrayValue{
				Values: []*commonpb.AnyValue{
					strValue("a"),
					{Value: &commonpb.AnyValue_IntValue{IntValue: 7}},
					{Value: &commonpb.AnyValue_ArrayValue{ArrayValue: &commonpb.ArrayValue{
						Values: []*commonpb.AnyValue{{Value: &commonpb.AnyValue_BoolValue{BoolValue: true}}},
					}}},
				},
			}}}},
			{Key: "nothing", Value: &commonpb.AnyValue{}},
		},
		Events: []*tracepb.Span_Event{
			{
				TimeUnixNano: s.Events[0].TimeUnixNs,
				Name:         "retry",
				Attributes: []*commonpb.KeyValue{
					{Key: "attempt", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: 2}}},
				},
			},
			{
				TimeUnixNano:           s.Events[1].TimeUnixNs,
				Name:                   "exception",
				DroppedAttributesCount: 3,
			},
		},
		Links: []*tracepb.Span_Link{
			{
				TraceId:    s.Links[0].TraceID[:],
				SpanId:     s.Links[0].SpanID[:],
				TraceState: "k=v",
				Attributes: []*commonpb.KeyValue{{Key: "link.kind", Value: strValue("follows")}},
				Flags:      0x301,
			},
		},
		Status: &tracepb.Status{Message: "boom", Code: tracepb.Status_STATUS_CODE_ERROR},
		Flags:  0x301,
	}
}

// TestMatchesGeneratedMarshal compares the encoder's bytes with the output of
// the generated OTLP types for a message where every field is set, so proto3
// zero-value omission plays no part.
func TestMatchesGeneratedMarshal(t *testing.T) {
	resource := &model.Resource{Attributes: []model.KeyValue{model.String("service.name", "checkout")}}
	spans := []*model.Span{richSpan(1), richSpan(2)}

	want, err := proto.Marshal(&coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{Key: "service.name", Value: strValue("checkout")}},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: "rich", Version: "1.0.0"},
				Spans: []*tracepb.Span{richSpanProto(1), richSpanProto(2)},
			}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, want, encodeBatch(t, DefaultOptions(), resource, spans))
}

func TestRoundTripWithGeneratedTypes(t *testing.T) {
	opts := DefaultOptions()
	opts.Limits.SpanAttributes = 2
	opts.Limits.LinkAttributes = 0
	opts.Limits.AttributeValueLength = 4

	span := richSpan(5)
	span.Attributes = append(span.Attributes,
		model.String("otel.status_code", "OK"),
		model.String("otel.status_description", "fine"))
	span.Status = model.Status{}

	var req coltracepb.ExportTraceServiceRequest
	require.NoError(t, proto.Unmarshal(encodeBatch(t, opts, &model.Resource{}, []*model.Span{span}), &req))

	require.Len(t, req.ResourceSpans, 1)
	rs := req.ResourceSpans[0]
	assert.Nil(t, rs.Resource)
	require.Len(t, rs.ScopeSpans, 1)
	assert.Equal(t, "rich", rs.ScopeSpans[0].Scope.GetName())
	require.Len(t, rs.ScopeSpans[0].Spans, 1)

	got := rs.ScopeSpans[0].Spans[0]
	assert.Equal(t, span.TraceID[:], got.TraceId)
	assert.Equal(t, span.SpanID[:], got.SpanId)
	assert.Equal(t, span.ParentSpanID[:], got.ParentSpanId)
	assert.Equal(t, tracepb.Span_SPAN_KIND_SERVER, got.Kind)

	require.Len(t, got.Attributes, 2)
	assert.Equal(t, "http.method", got.Attributes[0].Key)
	assert.Equal(t, "GET", got.Attributes[0].Value.GetStringValue())
	assert.Equal(t, "/pä", got.Attributes[1].Value.GetStringValue())
	assert.EqualValues(t, len(richSpan(5).Attributes)-2, got.DroppedAttributesCount)

	require.Len(t, got.Links, 1)
	assert.Empty(t, got.Links[0].Attributes)
	assert.EqualValues(t, 1, got.Links[0].DroppedAttributesCount)

	// A legacy OK status carries no description.
	assert.Equal(t, tracepb.Status_STATUS_CODE_OK, got.Status.GetCode())
	assert.Empty(t, got.Status.GetMessage())
}

func TestInvalidUTF8DecodesWithGeneratedTypes(t *testing.T) {
	resource := &model.Resource{Attributes: []model.KeyValue{model.String("host\xff", "node\xfe1")}}
	span := testSpan(1, "scope\xff")
	span.Name = "op\xfe"
	span.TraceState = "k=\xff"
	span.Attributes = []model.KeyValue{
		model.String("key\xfe", "ok\xffbad"),
		model.String("cut", "a\xe2\x82bcdef"),
		model.Array("list", model.StringValue("x\xff")),
	}
	span.Events = []model.Event{{Name: "ev\xff", TimeUnixNs: 1}}
	span.Links = []model.Link{{TraceID: testTraceID(2), SpanID: testSpanID(2), TraceState: "l=\xfe"}}
	span.Status = model.Status{Code: model.StatusCodeError, Message: "bad\xff"}

	tests := []struct {
		name     string
		limit    int
		wantOK   string
		wantCut  string
		wantList string
	}{
		{name: "unlimited", limit: Unlimited, wantOK: "ok�bad", wantCut: "a�bcdef", wantList: "x�"},
		{name: "limited", limit: 3, wantOK: "ok", wantCut: "a", wantList: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Limits.AttributeValueLength = tt.limit

			var req coltracepb.ExportTraceServiceRequest
			require.NoError(t, proto.Unmarshal(encodeBatch(t, opts, resource, []*model.Span{span}), &req))

			rs := req.ResourceSpans[0]
			assert.Equal(t, "host�", rs.Resource.Attributes[0].Key)
			assert.Equal(t, "node�1", rs.Resource.Attributes[0].Value.GetStringValue())
			assert.Equal(t, "scope�", rs.ScopeSpans[0].Scope.GetName())

			got := rs.ScopeSpans[0].Spans[0]
			assert.Equal(t, "op�", got.Name)
			assert.Equal(t, "k=�", got.TraceState)
			require.Len(t, got.Attributes, 3)
			assert.Equal(t, "key�", got.Attributes[0].Key)
			assert.Equal(t, tt.wantOK, got.Attributes[0].Value.GetStringValue())
			assert.Equal(t, tt.wantCut, got.Attributes[1].Value.GetStringValue())
			assert.Equal(t, tt.wantList, got.Attributes[2].Value.GetArrayValue().GetValues()[0].GetStringValue())
			assert.Equal(t, "ev�", got.Events[0].Name)
			assert.Equal(t, "l=�", got.Links[0].TraceState)
			assert.Equal(t, "bad�", got.Status.GetMessage())
		})
	}
}
