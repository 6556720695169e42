package adapter

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
)

// Batch is one resource with the spans it produced.
type Batch struct {
	Resource *model.Resource
	Spans    []*model.Span
}

// FromReadOnlySpans converts SDK spans, grouping them by resource in
// first-seen order. Spans without a resource share an empty one.
func FromReadOnlySpans(spans []sdktrace.ReadOnlySpan) []Batch {
	var (
		batches []Batch
		index   = make(map[attribute.Distinct]int)
	)
	for _, s := range spans {
		res := s.Resource()
		if res == nil {
			res = resource.Empty()
		}
		key := res.Equivalent()
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, Batch{Resource: &model.Resource{Attributes: FromAttributes(res.Attributes())}})
		}
		batches[i].Spans = append(batches[i].Spans, FromReadOnlySpan(s))
	}
	return batches
}

// FromReadOnlySpan converts a single SDK span.
func FromReadOnlySpan(s sdktrace.ReadOnlySpan) *model.Span {
	sc := s.SpanContext()
	parent := s.Parent()
	scope := s.InstrumentationScope()

	out := &model.Span{
		TraceID:                model.TraceID(sc.TraceID()),
		SpanID:                 model.SpanID(sc.SpanID()),
		TraceState:             sc.TraceState().String(),
		Name:                   s.Name(),
		Kind:                   model.SpanKind(s.SpanKind()),
		StartUnixNs:            unixNano(s.StartTime()),
		EndUnixNs:              unixNano(s.EndTime()),
		Attributes:             FromAttributes(s.Attributes()),
		Status:                 fromSDKStatus(s.Status()),
		TraceFlags:             byte(sc.TraceFlags()),
		RemoteParent:           parent.IsValid() && parent.IsRemote(),
		Scope:                  model.Scope{Name: scope.Name, Version: scope.Version},
		DroppedAttributesCount: clampCount(s.DroppedAttributes()),
		DroppedEventsCount:     clampCount(s.DroppedEvents()),
		DroppedLinksCount:      clampCount(s.DroppedLinks()),
	}
	if parent.HasSpanID() {
		out.ParentSpanID = model.SpanID(parent.SpanID())
	}

	if events := s.Events(); len(events) > 0 {
		out.Events = make([]model.Event, len(events))
		for i, ev := range events {
			out.Events[i] = model.Event{
				Name:                   ev.Name,
				TimeUnixNs:             unixNano(ev.Time),
				Attributes:             FromAttributes(ev.Attributes),
				DroppedAttributesCount: clampCount(ev.DroppedAttributeCount),
			}
		}
	}

	if links := s.Links(); len(links) > 0 {
		out.Links = make([]model.Link, len(links))
		for i, l := range links {
			out.Links[i] = model.Link{
				TraceID:                model.TraceID(l.SpanContext.TraceID()),
				SpanID:                 model.SpanID(l.SpanContext.SpanID()),
				TraceState:             l.SpanContext.TraceState().String(),
				TraceFlags:             byte(l.SpanContext.TraceFlags()),
				Remote:                 l.SpanContext.IsRemote(),
				Attributes:             FromAttributes(l.Attributes),
				DroppedAttributesCount: clampCount(l.DroppedAttributeCount),
			}
		}
	}
	return out
}

// FromAttributes converts SDK attributes. Typed slices become arrays.
func FromAttributes(attrs []attribute.KeyValue) []model.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]model.KeyValue, len(attrs))
	for i, kv := range attrs {
		kvs[i] = model.KeyValue{Key: string(kv.Key), Value: fromAttributeValue(kv.Value)}
	}
	return kvs
}

func fromAttributeValue(v attribute.Value) model.Value {
	switch v.Type() {
	case attribute.STRING:
		return model.StringValue(v.AsString())
	case attribute.BOOL:
		return model.BoolValue(v.AsBool())
	case attribute.INT64:
		return model.Int64Value(v.AsInt64())
	case attribute.FLOAT64:
		return model.DoubleValue(v.AsFloat64())
	case attribute.STRINGSLICE:
		return arrayOf(v.AsStringSlice(), model.StringValue)
	case attribute.BOOLSLICE:
		return arrayOf(v.AsBoolSlice(), model.BoolValue)
	case attribute.INT64SLICE:
		return arrayOf(v.AsInt64Slice(), model.Int64Value)
	case attribute.FLOAT64SLICE:
		return arrayOf(v.AsFloat64Slice(), model.DoubleValue)
	}
	return model.EmptyValue()
}

func arrayOf[T any](in []T, conv func(T) model.Value) model.Value {
	vs := make([]model.Value, len(in))
	for i, v := range in {
		vs[i] = conv(v)
	}
	return model.ArrayValue(vs...)
}

// fromSDKStatus maps the SDK's codes, which order Error before Ok, onto the
// OTLP enum.
func fromSDKStatus(st sdktrace.Status) model.Status {
	switch st.Code {
	case codes.Error:
		return model.Status{Code: model.StatusCodeError, Message: st.Description}
	case codes.Ok:
		return model.Status{Code: model.StatusCodeOk}
	}
	return model.Status{}
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func clampCount(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if uint64(n) > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
