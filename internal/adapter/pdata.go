// Package adapter converts spans from the collector's pdata and from the
// OpenTelemetry SDK into the encoder's model.
//
// Conversion happens once, here, so the encoder only ever sees the closed
// model.Value variant.
package adapter

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
)

// Span flag bits carried in the low bits of the pdata flags field.
const (
	traceFlagsMask     = 0xff
	flagsIsRemoteKnown = 0x100
	flagsIsRemote      = 0x200
)

// FromResourceSpans converts one pdata ResourceSpans into a resource and its
// spans. The returned spans keep their scope so the encoder can regroup them.
func FromResourceSpans(rs ptrace.ResourceSpans) (*model.Resource, []*model.Span) {
	resource := &model.Resource{Attributes: FromMap(rs.Resource().Attributes())}

	n := 0
	for i := 0; i < rs.ScopeSpans().Len(); i++ {
		n += rs.ScopeSpans().At(i).Spans().Len()
	}
	spans := make([]*model.Span, 0, n)

	for i := 0; i < rs.ScopeSpans().Len(); i++ {
		ss := rs.ScopeSpans().At(i)
		scope := model.Scope{
			Name:    ss.Scope().Name(),
			Version: ss.Scope().Version(),
		}
		for j := 0; j < ss.Spans().Len(); j++ {
			spans = append(spans, FromSpan(ss.Spans().At(j), scope))
		}
	}
	return resource, spans
}

// FromSpan converts a single pdata span.
func FromSpan(span ptrace.Span, scope model.Scope) *model.Span {
	flags := span.Flags()
	out := &model.Span{
		TraceID:                model.TraceID(span.TraceID()),
		SpanID:                 model.SpanID(span.SpanID()),
		ParentSpanID:           model.SpanID(span.ParentSpanID()),
		TraceState:             span.TraceState().AsRaw(),
		Name:                   span.Name(),
		Kind:                   model.SpanKind(span.Kind()),
		StartUnixNs:            uint64(span.StartTimestamp()),
		EndUnixNs:              uint64(span.EndTimestamp()),
		Attributes:             FromMap(span.Attributes()),
		TraceFlags:             byte(flags & traceFlagsMask),
		RemoteParent:           flags&flagsIsRemoteKnown != 0 && flags&flagsIsRemote != 0,
		Scope:                  scope,
		DroppedAttributesCount: span.DroppedAttributesCount(),
		DroppedEventsCount:     span.DroppedEventsCount(),
		DroppedLinksCount:      span.DroppedLinksCount(),
		Status: model.Status{
			Code:    model.StatusCode(span.Status().Code()),
			Message: span.Status().Message(),
		},
	}

	if events := span.Events(); events.Len() > 0 {
		out.Events = make([]model.Event, events.Len())
		for i := 0; i < events.Len(); i++ {
			ev := events.At(i)
			out.Events[i] = model.Event{
				Name:                   ev.Name(),
				TimeUnixNs:             uint64(ev.Timestamp()),
				Attributes:             FromMap(ev.Attributes()),
				DroppedAttributesCount: ev.DroppedAttributesCount(),
			}
		}
	}

	if links := span.Links(); links.Len() > 0 {
		out.Links = make([]model.Link, links.Len())
		for i := 0; i < links.Len(); i++ {
			l := links.At(i)
			lf := l.Flags()
			out.Links[i] = model.Link{
				TraceID:                model.TraceID(l.TraceID()),
				SpanID:                 model.SpanID(l.SpanID()),
				TraceState:             l.TraceState().AsRaw(),
				TraceFlags:             byte(lf & traceFlagsMask),
				Remote:                 lf&flagsIsRemoteKnown != 0 && lf&flagsIsRemote != 0,
				Attributes:             FromMap(l.Attributes()),
				DroppedAttributesCount: l.DroppedAttributesCount(),
			}
		}
	}
	return out
}

// FromMap converts an attribute map, keeping its iteration order.
func FromMap(m pcommon.Map) []model.KeyValue {
	if m.Len() == 0 {
		return nil
	}
	kvs := make([]model.KeyValue, 0, m.Len())
	m.Range(func(k string, v pcommon.Value) bool {
		kvs = append(kvs, model.KeyValue{Key: k, Value: FromValue(v)})
		return true
	})
	return kvs
}

// FromValue converts a pdata value. Maps and byte slices have no counterpart
// in the model and are carried as their string form.
func FromValue(v pcommon.Value) model.Value {
	switch v.Type() {
	case pcommon.ValueTypeStr:
		return model.StringValue(v.Str())
	case pcommon.ValueTypeBool:
		return model.BoolValue(v.Bool())
	case pcommon.ValueTypeInt:
		return model.Int64Value(v.Int())
	case pcommon.ValueTypeDouble:
		return model.DoubleValue(v.Double())
	case pcommon.ValueTypeSlice:
		s := v.Slice()
		vs := make([]model.Value, s.Len())
		for i := 0; i < s.Len(); i++ {
			vs[i] = FromValue(s.At(i))
		}
		return model.ArrayValue(vs...)
	case pcommon.ValueTypeMap, pcommon.ValueTypeBytes:
		return model.StringValue(v.AsString())
	}
	return model.EmptyValue()
}
