package spanencoder

// LimitsConfig is the configuration form of Limits. A nil field means no
// limit.
type LimitsConfig struct {
	// SpanAttributes is the max number of attributes encoded per span.
	SpanAttributes *int `mapstructure:"span_attributes" yaml:"span_attributes"`

	// EventAttributes is the max number of attributes encoded per event.
	EventAttributes *int `mapstructure:"event_attributes" yaml:"event_attributes"`

	// LinkAttributes is the max number of attributes encoded per link.
	LinkAttributes *int `mapstructure:"link_attributes" yaml:"link_attributes"`

	// Events is the max number of events encoded per span.
	Events *int `mapstructure:"events" yaml:"events"`

	// Links is the max number of links encoded per span.
	Links *int `mapstructure:"links" yaml:"links"`

	// AttributeValueLength is the max length in bytes of a string attribute
	// value. Longer values are cut at a character boundary.
	AttributeValueLength *int `mapstructure:"attribute_value_length" yaml:"attribute_value_length"`
}

// Resolve converts the configuration into Limits.
func (c LimitsConfig) Resolve() Limits {
	return Limits{
		SpanAttributes:       orUnlimited(c.SpanAttributes),
		EventAttributes:      orUnlimited(c.EventAttributes),
		LinkAttributes:       orUnlimited(c.LinkAttributes),
		Events:               orUnlimited(c.Events),
		Links:                orUnlimited(c.Links),
		AttributeValueLength: orUnlimited(c.AttributeValueLength),
	}
}

// Validate rejects negative limits.
func (c LimitsConfig) Validate() error {
	return c.Resolve().Validate()
}

func orUnlimited(v *int) int {
	if v == nil {
		return Unlimited
	}
	return *v
}

// StatusKeysConfig is the configuration form of StatusKeys.
type StatusKeysConfig struct {
	Code    string `mapstructure:"code" yaml:"code"`
	Message string `mapstructure:"message" yaml:"message"`
}

// DefaultStatusKeysConfig returns the configuration form of DefaultStatusKeys.
func DefaultStatusKeysConfig() StatusKeysConfig {
	k := DefaultStatusKeys()
	return StatusKeysConfig{Code: k.Code, Message: k.Message}
}

// BuildOptions returns encoder options for the given configuration.
func BuildOptions(limits LimitsConfig, keys StatusKeysConfig) (Options, error) {
	l := limits.Resolve()
	if err := l.Validate(); err != nil {
		return Options{}, err
	}
	return Options{
		Limits:     l,
		StatusKeys: StatusKeys{Code: keys.Code, Message: keys.Message},
	}, nil
}
