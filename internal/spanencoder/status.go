package spanencoder

import (
	"strings"

	"github.com/deepaksharma/otlp-span-encoder/internal/model"
)

// resolveStatus decides which status, if any, a span is encoded with.
//
// The span's own status wins when it is set. Otherwise a status code found
// under keys.Code (with its message under keys.Message) is used. When neither
// exists the status field is omitted.
func resolveStatus(span *model.Span, keys StatusKeys) (model.Status, bool) {
	if span.Status.Code != model.StatusCodeUnset {
		return span.Status, true
	}
	if keys.Code == "" {
		return model.Status{}, false
	}

	var (
		st    model.Status
		found bool
	)
	for i := range span.Attributes {
		kv := &span.Attributes[i]
		switch {
		case kv.Key == keys.Code:
			if code, ok := parseStatusCode(kv.Value); ok {
				st.Code = code
				found = true
			}
		case keys.Message != "" && kv.Key == keys.Message:
			if kv.Value.Type() == model.ValueTypeString {
				st.Message = kv.Value.Str()
			}
		}
	}
	return st, found
}

// parseStatusCode accepts the names used by OpenTelemetry shims ("OK",
// "ERROR", "UNSET", any case) and the numeric enum values.
func parseStatusCode(v model.Value) (model.StatusCode, bool) {
	switch v.Type() {
	case model.ValueTypeString:
		switch s := v.Str(); {
		case strings.EqualFold(s, "UNSET"):
			return model.StatusCodeUnset, true
		case strings.EqualFold(s, "OK"):
			return model.StatusCodeOk, true
		case strings.EqualFold(s, "ERROR"):
			return model.StatusCodeError, true
		}
	case model.ValueTypeInt64:
		if c := v.Int64(); c >= int64(model.StatusCodeUnset) && c <= int64(model.StatusCodeError) {
			return model.StatusCode(c), true
		}
	}
	return model.StatusCodeUnset, false
}

// statusMessage returns the message that is written for st. Only error
// statuses carry a description.
func statusMessage(st model.Status) string {
	if st.Code != model.StatusCodeError {
		return ""
	}
	return validUTF8(st.Message)
}
