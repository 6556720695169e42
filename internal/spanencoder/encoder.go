// Package spanencoder writes spans as an OTLP ExportTraceServiceRequest
// without a protobuf runtime.
//
// Every message is sized before it is written, so each length prefix is
// written once, up front, and nothing is patched afterwards. The size
// functions in size.go and the write methods in this file must make the same
// decisions; a disagreement panics with a *SizeMismatchError.
package spanencoder

import (
	"fmt"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
	"github.com/deepaksharma/otlp-span-encoder/internal/wire"
)

type state uint8

const (
	stateIdle state = iota
	stateEncoding
)

type scopeGroup struct {
	scope model.Scope
	spans []*model.Span
}

// Stats describes the last encoded batch.
type Stats struct {
	Bytes             int
	Scopes            int
	Spans             int
	DroppedAttributes int
	DroppedEvents     int
	DroppedLinks      int
	BufferGrows       int
}

// BatchEncoder encodes one resource and its spans at a time.
//
// Begin groups the spans by scope name, Encode writes the batch and End
// releases the grouping so the encoder can take the next batch. The grouping
// storage is kept across batches.
//
// A BatchEncoder is not safe for concurrent use. Use one per worker, or guard
// a shared one with a mutex.
type BatchEncoder struct {
	opts Options

	state    state
	resource *model.Resource
	index    map[string]int
	groups   []scopeGroup

	// Sizes computed by the sizing pass and consumed, in order, by the
	// writing pass.
	scopeSizes []int
	spanSizes  []int

	w     wire.Writer
	stats Stats
}

// New returns an idle encoder.
func New(opts Options) (*BatchEncoder, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	return &BatchEncoder{
		opts:  opts,
		index: make(map[string]int),
	}, nil
}

// Options returns the options the encoder was built with.
func (e *BatchEncoder) Options() Options { return e.opts }

// Begin starts a batch. Spans are grouped by scope name in first-seen order;
// the version of the first span seen for a name is used for the group. The
// encoder keeps references to resource and spans until End.
func (e *BatchEncoder) Begin(resource *model.Resource, spans []*model.Span) error {
	if e.state != stateIdle {
		return ErrBatchInProgress
	}
	if resource == nil {
		return ErrNilResource
	}
	for i, span := range spans {
		if span == nil {
			e.reset()
			return fmt.Errorf("span %d is nil", i)
		}
		g := e.group(span.Scope)
		g.spans = append(g.spans, span)
	}
	e.resource = resource
	e.state = stateEncoding
	return nil
}

func (e *BatchEncoder) group(scope model.Scope) *scopeGroup {
	if i, ok := e.index[scope.Name]; ok {
		return &e.groups[i]
	}
	n := len(e.groups)
	if n < cap(e.groups) {
		// Reuse the slot and its span slice from an earlier batch.
		e.groups = e.groups[:n+1]
		e.groups[n].scope = scope
	} else {
		e.groups = append(e.groups, scopeGroup{scope: scope})
	}
	e.index[scope.Name] = n
	return &e.groups[n]
}

// End finishes the batch and clears the grouping. It is a no-op when idle.
func (e *BatchEncoder) End() {
	e.reset()
}

func (e *BatchEncoder) reset() {
	clear(e.index)
	for i := range e.groups {
		clear(e.groups[i].spans)
		e.groups[i].spans = e.groups[i].spans[:0]
		e.groups[i].scope = model.Scope{}
	}
	e.groups = e.groups[:0]
	e.scopeSizes = e.scopeSizes[:0]
	e.spanSizes = e.spanSizes[:0]
	e.resource = nil
	e.state = stateIdle
}

// Size returns the number of bytes Encode will write for the current batch.
func (e *BatchEncoder) Size() (int, error) {
	if e.state != stateEncoding {
		return 0, ErrNoBatch
	}
	if len(e.groups) == 0 {
		return 0, nil
	}
	return wire.SizeLengthDelimited(fieldRequestResourceSpans, e.sizeResourceSpans()), nil
}

// Stats returns counters for the last Encode call.
func (e *BatchEncoder) Stats() Stats { return e.stats }

// Encode appends the current batch to buf starting at offset and returns the
// written range buf[:end]. buf grows as needed; bytes before offset are kept.
// A batch with no spans writes nothing.
//
// The output is a serialized ExportTraceServiceRequest holding one
// ResourceSpans. Encoding several batches back to back into one buffer yields
// a valid request with several ResourceSpans.
//
// A *SizeMismatchError panic ends the batch before it propagates, so a caller
// that recovers can Begin again.
func (e *BatchEncoder) Encode(buf []byte, offset int) ([]byte, int, error) {
	if e.state != stateEncoding {
		return buf, offset, ErrNoBatch
	}
	defer e.resetOnPanic()
	e.stats = Stats{}
	e.w.Reset(buf, offset)
	if len(e.groups) == 0 {
		return e.w.Bytes(), offset, nil
	}

	rsSize := e.sizeResourceSpans()
	total := wire.SizeLengthDelimited(fieldRequestResourceSpans, rsSize)
	e.w.Grow(total)

	start := e.w.Pos()
	e.w.WriteMessageHeader(fieldRequestResourceSpans, rsSize)
	e.writeResourceSpans(rsSize)
	e.check("request", start, total)

	e.stats.Bytes = total
	e.stats.Scopes = len(e.groups)
	e.stats.BufferGrows = e.w.Grows()
	return e.w.Bytes(), e.w.Pos(), nil
}

// sizeResourceSpans runs the sizing pass, recording each scope and span size
// for the writing pass.
func (e *BatchEncoder) sizeResourceSpans() int {
	e.scopeSizes = e.scopeSizes[:0]
	e.spanSizes = e.spanSizes[:0]

	size := 0
	if rs := SizeOfResource(e.resource); rs > 0 {
		size += wire.SizeLengthDelimited(fieldResourceSpansResource, rs)
	}
	for i := range e.groups {
		g := &e.groups[i]
		scopeSize := wire.SizeLengthDelimited(fieldScopeSpansScope, SizeOfScope(g.scope))
		for _, span := range g.spans {
			spanSize := SizeOfSpan(span, e.opts)
			e.spanSizes = append(e.spanSizes, spanSize)
			scopeSize += wire.SizeLengthDelimited(fieldScopeSpansSpans, spanSize)
		}
		e.scopeSizes = append(e.scopeSizes, scopeSize)
		size += wire.SizeLengthDelimited(fieldResourceSpansScopeSpans, scopeSize)
	}
	return size
}

func (e *BatchEncoder) writeResourceSpans(size int) {
	start := e.w.Pos()

	if rs := SizeOfResource(e.resource); rs > 0 {
		e.w.WriteMessageHeader(fieldResourceSpansResource, rs)
		resStart := e.w.Pos()
		for i := range e.resource.Attributes {
			e.writeKeyValue(fieldResourceAttributes, &e.resource.Attributes[i], Unlimited)
		}
		e.check("resource", resStart, rs)
	}

	spanIdx := 0
	for i := range e.groups {
		g := &e.groups[i]
		e.w.WriteMessageHeader(fieldResourceSpansScopeSpans, e.scopeSizes[i])
		scopeStart := e.w.Pos()

		e.w.WriteMessageHeader(fieldScopeSpansScope, SizeOfScope(g.scope))
		if g.scope.Name != "" {
			e.w.WriteString(fieldScopeName, validUTF8(g.scope.Name))
		}
		if g.scope.Version != "" {
			e.w.WriteString(fieldScopeVersion, validUTF8(g.scope.Version))
		}

		for _, span := range g.spans {
			spanSize := e.spanSizes[spanIdx]
			spanIdx++
			e.w.WriteMessageHeader(fieldScopeSpansSpans, spanSize)
			spanStart := e.w.Pos()
			e.writeSpan(span)
			e.check("span", spanStart, spanSize)
			e.stats.Spans++
		}
		e.check("scope spans", scopeStart, e.scopeSizes[i])
	}

	e.check("resource spans", start, size)
}

func (e *BatchEncoder) writeSpan(span *model.Span) {
	limits := e.opts.Limits
	w := &e.w

	w.WriteBytes(fieldSpanTraceID, span.TraceID[:])
	w.WriteBytes(fieldSpanSpanID, span.SpanID[:])
	if span.TraceState != "" {
		w.WriteString(fieldSpanTraceState, validUTF8(span.TraceState))
	}
	if !span.ParentSpanID.IsEmpty() {
		w.WriteBytes(fieldSpanParentSpanID, span.ParentSpanID[:])
	}
	w.WriteString(fieldSpanName, validUTF8(span.Name))
	w.WriteVarintField(fieldSpanKind, uint64(span.Kind))
	w.WriteFixed64Field(fieldSpanStartTime, span.StartUnixNs)
	w.WriteFixed64Field(fieldSpanEndTime, span.EndUnixNs)

	droppedAttrs := forEachSpanAttribute(span.Attributes, limits.SpanAttributes, e.opts.StatusKeys, func(kv *model.KeyValue) {
		e.writeKeyValue(fieldSpanAttributes, kv, limits.AttributeValueLength)
	})
	e.writeDroppedCount(fieldSpanDroppedAttributesCount, droppedCount(droppedAttrs, span.DroppedAttributesCount))
	e.stats.DroppedAttributes += droppedAttrs

	events, droppedEvents := limitPrefix(len(span.Events), limits.Events)
	for i := 0; i < events; i++ {
		e.writeEvent(&span.Events[i])
	}
	e.writeDroppedCount(fieldSpanDroppedEventsCount, droppedCount(droppedEvents, span.DroppedEventsCount))
	e.stats.DroppedEvents += droppedEvents

	links, droppedLinks := limitPrefix(len(span.Links), limits.Links)
	for i := 0; i < links; i++ {
		e.writeLink(&span.Links[i])
	}
	e.writeDroppedCount(fieldSpanDroppedLinksCount, droppedCount(droppedLinks, span.DroppedLinksCount))
	e.stats.DroppedLinks += droppedLinks

	if st, ok := resolveStatus(span, e.opts.StatusKeys); ok {
		w.WriteMessageHeader(fieldSpanStatus, SizeOfStatus(st))
		if msg := statusMessage(st); msg != "" {
			w.WriteString(fieldStatusMessage, msg)
		}
		if st.Code != model.StatusCodeUnset {
			w.WriteVarintField(fieldStatusCode, uint64(st.Code))
		}
	}

	w.WriteFixed32Field(fieldSpanFlags, contextFlags(span.TraceFlags, span.RemoteParent))
}

func (e *BatchEncoder) writeEvent(ev *model.Event) {
	limits := e.opts.Limits
	size := SizeOfEvent(ev, limits)
	e.w.WriteMessageHeader(fieldSpanEvents, size)
	start := e.w.Pos()

	e.w.WriteFixed64Field(fieldEventTime, ev.TimeUnixNs)
	e.w.WriteString(fieldEventName, validUTF8(ev.Name))
	keep, dropped := limitPrefix(len(ev.Attributes), limits.EventAttributes)
	for i := 0; i < keep; i++ {
		e.writeKeyValue(fieldEventAttributes, &ev.Attributes[i], limits.AttributeValueLength)
	}
	e.writeDroppedCount(fieldEventDroppedAttributesCount, droppedCount(dropped, ev.DroppedAttributesCount))
	e.stats.DroppedAttributes += dropped

	e.check("event", start, size)
}

func (e *BatchEncoder) writeLink(l *model.Link) {
	limits := e.opts.Limits
	size := SizeOfLink(l, limits)
	e.w.WriteMessageHeader(fieldSpanLinks, size)
	start := e.w.Pos()

	e.w.WriteBytes(fieldLinkTraceID, l.TraceID[:])
	e.w.WriteBytes(fieldLinkSpanID, l.SpanID[:])
	if l.TraceState != "" {
		e.w.WriteString(fieldLinkTraceState, validUTF8(l.TraceState))
	}
	keep, dropped := limitPrefix(len(l.Attributes), limits.LinkAttributes)
	for i := 0; i < keep; i++ {
		e.writeKeyValue(fieldLinkAttributes, &l.Attributes[i], limits.AttributeValueLength)
	}
	e.writeDroppedCount(fieldLinkDroppedAttributesCount, droppedCount(dropped, l.DroppedAttributesCount))
	e.stats.DroppedAttributes += dropped
	e.w.WriteFixed32Field(fieldLinkFlags, contextFlags(l.TraceFlags, l.Remote))

	e.check("link", start, size)
}

func (e *BatchEncoder) writeKeyValue(field int, kv *model.KeyValue, valueLimit int) {
	key := validUTF8(kv.Key)
	valueSize := SizeOfAnyValue(kv.Value, valueLimit)
	e.w.WriteMessageHeader(field, wire.SizeLengthDelimited(fieldKeyValueKey, len(key))+
		wire.SizeLengthDelimited(fieldKeyValueValue, valueSize))
	e.w.WriteString(fieldKeyValueKey, key)
	e.w.WriteMessageHeader(fieldKeyValueValue, valueSize)
	e.writeAnyValue(kv.Value, valueLimit)
}

func (e *BatchEncoder) writeAnyValue(v model.Value, valueLimit int) {
	switch v.Type() {
	case model.ValueTypeString:
		e.w.WriteString(fieldAnyValueString, truncate(v.Str(), valueLimit))
	case model.ValueTypeBool:
		e.w.WriteBool(fieldAnyValueBool, v.Bool())
	case model.ValueTypeInt64:
		e.w.WriteInt64(fieldAnyValueInt, v.Int64())
	case model.ValueTypeDouble:
		e.w.WriteDouble(fieldAnyValueDouble, v.Double())
	case model.ValueTypeArray:
		elems := v.Array()
		e.w.WriteMessageHeader(fieldAnyValueArray, sizeOfArrayValue(elems, valueLimit))
		for _, elem := range elems {
			e.w.WriteMessageHeader(fieldArrayValueValues, SizeOfAnyValue(elem, valueLimit))
			e.writeAnyValue(elem, valueLimit)
		}
	}
}

func (e *BatchEncoder) writeDroppedCount(field int, n uint32) {
	if n > 0 {
		e.w.WriteVarintField(field, uint64(n))
	}
}

// check panics when the bytes written since start differ from the predicted
// size.
func (e *BatchEncoder) check(msg string, start, predicted int) {
	if written := e.w.Pos() - start; written != predicted {
		panic(&SizeMismatchError{Message: msg, Predicted: predicted, Written: written})
	}
}

// resetOnPanic returns the encoder to idle and re-panics. It must be deferred
// directly.
func (e *BatchEncoder) resetOnPanic() {
	if r := recover(); r != nil {
		e.reset()
		panic(r)
	}
}

// contextFlags builds the fixed32 flags field: the trace flags byte, the
// "remote is known" bit and the remote bit.
func contextFlags(traceFlags byte, remote bool) uint32 {
	flags := uint32(traceFlags) | flagsContextHasIsRemote
	if remote {
		flags |= flagsContextIsRemote
	}
	return flags
}

// Encode encodes one batch with a throwaway encoder. Long-lived callers should
// keep a BatchEncoder and reuse it.
func Encode(opts Options, resource *model.Resource, spans []*model.Span, buf []byte, offset int) ([]byte, int, error) {
	e, err := New(opts)
	if err != nil {
		return buf, offset, err
	}
	if err := e.Begin(resource, spans); err != nil {
		return buf, offset, err
	}
	defer e.End()
	return e.Encode(buf, offset)
}
