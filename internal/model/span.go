// Package model holds the read-only span records handed to the encoder.
// Records are built once at the boundary (see package adapter) and are never
// mutated by the encoder.
package model

import (
	"encoding/hex"
)

// TraceID is a 16 byte trace identifier.
type TraceID [16]byte

// IsEmpty reports whether every byte is zero.
func (t TraceID) IsEmpty() bool { return t == TraceID{} }

func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// SpanID is an 8 byte span identifier.
type SpanID [8]byte

// IsEmpty reports whether every byte is zero.
func (s SpanID) IsEmpty() bool { return s == SpanID{} }

func (s SpanID) String() string { return hex.EncodeToString(s[:]) }

// SpanKind follows the OTLP enum values.
type SpanKind int32

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

// StatusCode follows the OTLP enum values.
type StatusCode int32

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

func (c StatusCode) String() string {
	switch c {
	case StatusCodeUnset:
		return "Unset"
	case StatusCodeOk:
		return "Ok"
	case StatusCodeError:
		return "Error"
	}
	return "StatusCode(?)"
}

// Status is the outcome of a span.
type Status struct {
	Code    StatusCode
	Message string
}

// Scope identifies the instrumentation that produced a span.
type Scope struct {
	Name    string
	Version string
}

// Resource describes the entity producing the spans.
type Resource struct {
	Attributes []KeyValue
}

// Event is a timed annotation on a span.
type Event struct {
	Name       string
	TimeUnixNs uint64
	Attributes []KeyValue

	// DroppedAttributesCount is the number of attributes the producer already
	// discarded. Limit-induced drops are added on top of it.
	DroppedAttributesCount uint32
}

// Link references another span.
type Link struct {
	TraceID    TraceID
	SpanID     SpanID
	TraceState string
	TraceFlags byte
	Remote     bool
	Attributes []KeyValue

	DroppedAttributesCount uint32
}

// Span is one unit of work.
type Span struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID
	TraceState   string
	Name         string
	Kind         SpanKind
	StartUnixNs  uint64
	EndUnixNs    uint64
	Attributes   []KeyValue
	Events       []Event
	Links        []Link
	Status       Status
	TraceFlags   byte
	RemoteParent bool
	Scope        Scope

	DroppedAttributesCount uint32
	DroppedEventsCount     uint32
	DroppedLinksCount      uint32
}
