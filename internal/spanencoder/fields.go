package spanencoder

// Field numbers of the OTLP trace v1 messages.
const (
	fieldRequestResourceSpans = 1

	fieldResourceSpansResource   = 1
	fieldResourceSpansScopeSpans = 2

	fieldResourceAttributes = 1

	fieldScopeSpansScope = 1
	fieldScopeSpansSpans = 2

	fieldScopeName    = 1
	fieldScopeVersion = 2

	fieldSpanTraceID                = 1
	fieldSpanSpanID                 = 2
	fieldSpanTraceState             = 3
	fieldSpanParentSpanID           = 4
	fieldSpanName                   = 5
	fieldSpanKind                   = 6
	fieldSpanStartTime              = 7
	fieldSpanEndTime                = 8
	fieldSpanAttributes             = 9
	fieldSpanDroppedAttributesCount = 10
	fieldSpanEvents                 = 11
	fieldSpanDroppedEventsCount     = 12
	fieldSpanLinks                  = 13
	fieldSpanDroppedLinksCount      = 14
	fieldSpanStatus                 = 15
	fieldSpanFlags                  = 16

	fieldEventTime                   = 1
	fieldEventName                   = 2
	fieldEventAttributes             = 3
	fieldEventDroppedAttributesCount = 4

	fieldLinkTraceID                = 1
	fieldLinkSpanID                 = 2
	fieldLinkTraceState             = 3
	fieldLinkAttributes             = 4
	fieldLinkDroppedAttributesCount = 5
	fieldLinkFlags                  = 6

	fieldStatusMessage = 2
	fieldStatusCode    = 3

	fieldKeyValueKey   = 1
	fieldKeyValueValue = 2

	fieldAnyValueString = 1
	fieldAnyValueBool   = 2
	fieldAnyValueInt    = 3
	fieldAnyValueDouble = 4
	fieldAnyValueArray  = 5

	fieldArrayValueValues = 1
)

// Span and link flag bits above the W3C trace flags byte.
const (
	flagsContextHasIsRemote = 0x100
	flagsContextIsRemote    = 0x200
)
