package spanencoder

import (
	"math"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
	"github.com/deepaksharma/otlp-span-encoder/internal/wire"
)

// The SizeOf functions return the content size of a message, excluding its
// own tag and length prefix. They make exactly the decisions the writer makes:
// same truncation, same list prefixes, same optional fields.

// SizeOfAnyValue returns the size of an AnyValue message holding v. Strings,
// including those nested in arrays, are cut to valueLimit bytes first. An
// empty value has size 0.
func SizeOfAnyValue(v model.Value, valueLimit int) int {
	switch v.Type() {
	case model.ValueTypeString:
		return wire.SizeLengthDelimited(fieldAnyValueString, len(truncate(v.Str(), valueLimit)))
	case model.ValueTypeBool:
		return wire.SizeVarintField(fieldAnyValueBool, 1)
	case model.ValueTypeInt64:
		return wire.SizeVarintField(fieldAnyValueInt, uint64(v.Int64()))
	case model.ValueTypeDouble:
		return wire.SizeFixed64Field(fieldAnyValueDouble)
	case model.ValueTypeArray:
		return wire.SizeLengthDelimited(fieldAnyValueArray, sizeOfArrayValue(v.Array(), valueLimit))
	}
	return 0
}

func sizeOfArrayValue(vs []model.Value, valueLimit int) int {
	size := 0
	for _, v := range vs {
		size += wire.SizeLengthDelimited(fieldArrayValueValues, SizeOfAnyValue(v, valueLimit))
	}
	return size
}

// SizeOfKeyValue returns the size of a KeyValue message.
func SizeOfKeyValue(kv model.KeyValue, valueLimit int) int {
	return wire.SizeLengthDelimited(fieldKeyValueKey, len(validUTF8(kv.Key))) +
		wire.SizeLengthDelimited(fieldKeyValueValue, SizeOfAnyValue(kv.Value, valueLimit))
}

// SizeOfAttributeList returns the size of the first maxCount attributes
// written as repeated field number field, and how many attributes were left
// out. The dropped-count field is not included.
func SizeOfAttributeList(field int, attrs []model.KeyValue, maxCount, valueLimit int) (size, dropped int) {
	keep, dropped := limitPrefix(len(attrs), maxCount)
	for i := 0; i < keep; i++ {
		size += wire.SizeLengthDelimited(field, SizeOfKeyValue(attrs[i], valueLimit))
	}
	return size, dropped
}

// SizeOfEvent returns the size of a Span.Event message.
func SizeOfEvent(ev *model.Event, limits Limits) int {
	size := wire.SizeFixed64Field(fieldEventTime) +
		wire.SizeLengthDelimited(fieldEventName, len(validUTF8(ev.Name)))

	attrs, dropped := SizeOfAttributeList(fieldEventAttributes, ev.Attributes, limits.EventAttributes, limits.AttributeValueLength)
	size += attrs
	size += sizeOfDroppedCount(fieldEventDroppedAttributesCount, droppedCount(dropped, ev.DroppedAttributesCount))
	return size
}

// SizeOfLink returns the size of a Span.Link message.
func SizeOfLink(l *model.Link, limits Limits) int {
	size := wire.SizeLengthDelimited(fieldLinkTraceID, len(l.TraceID)) +
		wire.SizeLengthDelimited(fieldLinkSpanID, len(l.SpanID))
	if l.TraceState != "" {
		size += wire.SizeLengthDelimited(fieldLinkTraceState, len(validUTF8(l.TraceState)))
	}

	attrs, dropped := SizeOfAttributeList(fieldLinkAttributes, l.Attributes, limits.LinkAttributes, limits.AttributeValueLength)
	size += attrs
	size += sizeOfDroppedCount(fieldLinkDroppedAttributesCount, droppedCount(dropped, l.DroppedAttributesCount))
	size += wire.SizeFixed32Field(fieldLinkFlags)
	return size
}

// SizeOfStatus returns the size of a Status message. A status with code unset
// and no message is an empty message.
func SizeOfStatus(st model.Status) int {
	size := 0
	if msg := statusMessage(st); msg != "" {
		size += wire.SizeLengthDelimited(fieldStatusMessage, len(msg))
	}
	if st.Code != model.StatusCodeUnset {
		size += wire.SizeVarintField(fieldStatusCode, uint64(st.Code))
	}
	return size
}

// SizeOfSpan returns the size of a Span message encoded with opts.
func SizeOfSpan(span *model.Span, opts Options) int {
	limits := opts.Limits

	size := wire.SizeLengthDelimited(fieldSpanTraceID, len(span.TraceID)) +
		wire.SizeLengthDelimited(fieldSpanSpanID, len(span.SpanID))
	if span.TraceState != "" {
		size += wire.SizeLengthDelimited(fieldSpanTraceState, len(validUTF8(span.TraceState)))
	}
	if !span.ParentSpanID.IsEmpty() {
		size += wire.SizeLengthDelimited(fieldSpanParentSpanID, len(span.ParentSpanID))
	}
	size += wire.SizeLengthDelimited(fieldSpanName, len(validUTF8(span.Name)))
	size += wire.SizeVarintField(fieldSpanKind, uint64(span.Kind))
	size += wire.SizeFixed64Field(fieldSpanStartTime)
	size += wire.SizeFixed64Field(fieldSpanEndTime)

	droppedAttrs := forEachSpanAttribute(span.Attributes, limits.SpanAttributes, opts.StatusKeys, func(kv *model.KeyValue) {
		size += wire.SizeLengthDelimited(fieldSpanAttributes, SizeOfKeyValue(*kv, limits.AttributeValueLength))
	})
	size += sizeOfDroppedCount(fieldSpanDroppedAttributesCount, droppedCount(droppedAttrs, span.DroppedAttributesCount))

	events, droppedEvents := limitPrefix(len(span.Events), limits.Events)
	for i := 0; i < events; i++ {
		size += wire.SizeLengthDelimited(fieldSpanEvents, SizeOfEvent(&span.Events[i], limits))
	}
	size += sizeOfDroppedCount(fieldSpanDroppedEventsCount, droppedCount(droppedEvents, span.DroppedEventsCount))

	links, droppedLinks := limitPrefix(len(span.Links), limits.Links)
	for i := 0; i < links; i++ {
		size += wire.SizeLengthDelimited(fieldSpanLinks, SizeOfLink(&span.Links[i], limits))
	}
	size += sizeOfDroppedCount(fieldSpanDroppedLinksCount, droppedCount(droppedLinks, span.DroppedLinksCount))

	if st, ok := resolveStatus(span, opts.StatusKeys); ok {
		size += wire.SizeLengthDelimited(fieldSpanStatus, SizeOfStatus(st))
	}
	size += wire.SizeFixed32Field(fieldSpanFlags)
	return size
}

// SizeOfScope returns the size of an InstrumentationScope message.
func SizeOfScope(scope model.Scope) int {
	size := 0
	if scope.Name != "" {
		size += wire.SizeLengthDelimited(fieldScopeName, len(validUTF8(scope.Name)))
	}
	if scope.Version != "" {
		size += wire.SizeLengthDelimited(fieldScopeVersion, len(validUTF8(scope.Version)))
	}
	return size
}

// SizeOfScopeGroup returns the size of a ScopeSpans message holding spans.
func SizeOfScopeGroup(scope model.Scope, spans []*model.Span, opts Options) int {
	size := wire.SizeLengthDelimited(fieldScopeSpansScope, SizeOfScope(scope))
	for _, span := range spans {
		size += wire.SizeLengthDelimited(fieldScopeSpansSpans, SizeOfSpan(span, opts))
	}
	return size
}

// SizeOfResource returns the size of a Resource message. Resource attributes
// are not subject to limits. An empty resource has size 0 and is omitted.
func SizeOfResource(r *model.Resource) int {
	size, _ := SizeOfAttributeList(fieldResourceAttributes, r.Attributes, Unlimited, Unlimited)
	return size
}

// limitPrefix splits n items into the encoded prefix and the dropped rest.
func limitPrefix(n, limit int) (keep, dropped int) {
	if n <= limit {
		return n, 0
	}
	return limit, n - limit
}

// forEachSpanAttribute calls fn for every span attribute that gets encoded,
// in order, and returns how many were dropped by maxCount. Attributes holding
// a legacy status are skipped and never count against the limit.
func forEachSpanAttribute(attrs []model.KeyValue, maxCount int, keys StatusKeys, fn func(*model.KeyValue)) (dropped int) {
	kept := 0
	for i := range attrs {
		kv := &attrs[i]
		if keys.matches(kv.Key) {
			continue
		}
		if kept < maxCount {
			fn(kv)
			kept++
		} else {
			dropped++
		}
	}
	return dropped
}

// droppedCount adds the producer's own dropped count to the limit-induced one,
// saturating at the width of the wire field.
func droppedCount(limited int, prior uint32) uint32 {
	total := uint64(limited) + uint64(prior)
	if total > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(total)
}

func sizeOfDroppedCount(field int, n uint32) int {
	if n == 0 {
		return 0
	}
	return wire.SizeVarintField(field, uint64(n))
}
