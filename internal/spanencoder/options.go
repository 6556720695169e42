package spanencoder

import (
	"fmt"
	"math"
)

// Unlimited disables a limit.
const Unlimited = math.MaxInt

// Limits bound how much of each span is encoded. Items past a count limit are
// reported through the matching dropped-count field.
type Limits struct {
	SpanAttributes       int
	EventAttributes      int
	LinkAttributes       int
	Events               int
	Links                int
	AttributeValueLength int
}

// DefaultLimits returns limits with every bound disabled.
func DefaultLimits() Limits {
	return Limits{
		SpanAttributes:       Unlimited,
		EventAttributes:      Unlimited,
		LinkAttributes:       Unlimited,
		Events:               Unlimited,
		Links:                Unlimited,
		AttributeValueLength: Unlimited,
	}
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"span attributes", l.SpanAttributes},
		{"event attributes", l.EventAttributes},
		{"link attributes", l.LinkAttributes},
		{"events", l.Events},
		{"links", l.Links},
		{"attribute value length", l.AttributeValueLength},
	}
	for _, c := range checks {
		if c.value < 0 {
			return fmt.Errorf("%w: %s limit is %d", ErrInvalidLimit, c.name, c.value)
		}
	}
	return nil
}

// StatusKeys names the span attributes that carry a status in place of the
// span's own status field. Matching attributes are removed from the encoded
// attribute list. An empty key disables that mapping.
type StatusKeys struct {
	Code    string
	Message string
}

// DefaultStatusKeys returns the keys used by OpenTelemetry shims that record
// status as attributes.
func DefaultStatusKeys() StatusKeys {
	return StatusKeys{
		Code:    "otel.status_code",
		Message: "otel.status_description",
	}
}

func (k StatusKeys) matches(key string) bool {
	return (k.Code != "" && key == k.Code) || (k.Message != "" && key == k.Message)
}

// Options configures a BatchEncoder.
type Options struct {
	Limits     Limits
	StatusKeys StatusKeys
}

// DefaultOptions returns unlimited limits and the default status keys.
func DefaultOptions() Options {
	return Options{
		Limits:     DefaultLimits(),
		StatusKeys: DefaultStatusKeys(),
	}
}
