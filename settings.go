package subwatch

import (
	"fmt"
	"strconv"
)

// SettingType identifies how a setting value is rendered and validated.
type SettingType string

const (
	SettingString  SettingType = "string"
	SettingSecret  SettingType = "secret"
	SettingInteger SettingType = "integer"
	SettingBoolean SettingType = "boolean"
)

// Per-field messages produced by Settings.Validate.
const (
	RequiredMessage = "This field is required."
	IntegerMessage  = "Enter a whole number."
	BooleanMessage  = "Enter true or false."
	TextMessage     = "Enter a text value."
)

// A SettingField describes one configurable setting of a provider.
type SettingField struct {
	Key         string
	Label       string
	Description string
	Type        SettingType
	Required    bool
	Default     any
	// Min and Max bound integer settings; both zero means unbounded.
	Min, Max int
}

// Settings is the ordered settings schema declared by a provider
// implementation. Each implementation declares its own value; schemas are
// never shared mutable state.
type Settings []SettingField

// Field returns the descriptor declared for key.
func (s Settings) Field(key string) (SettingField, bool) {
	for _, f := range s {
		if f.Key == key {
			return f, true
		}
	}
	return SettingField{}, false
}

// Keys returns the declared setting keys in schema order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, f := range s {
		keys = append(keys, f.Key)
	}
	return keys
}

// Validate checks config against the schema, returning a *ValidationError
// with one message per offending field, or nil if everything is acceptable.
// Keys not declared by the schema are ignored.
func (s Settings) Validate(config Configuration) error {
	fields := make(map[string]string)
	for _, f := range s {
		raw, ok := config[f.Key]
		if !ok || raw == nil || raw == "" {
			if f.Required {
				fields[f.Key] = RequiredMessage
			}
			continue
		}
		if msg := f.check(raw); msg != "" {
			fields[f.Key] = msg
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Int reads an integer setting from config, falling back to the field default.
func (s Settings) Int(config Configuration, key string) int {
	f, ok := s.Field(key)
	if raw, present := config[key]; present && raw != nil && raw != "" {
		if n, err := toInt(raw); err == nil {
			return n
		}
	}
	if !ok {
		return 0
	}
	n, _ := toInt(f.Default)
	return n
}

// String reads a string setting from config, falling back to the field default.
func (s Settings) String(config Configuration, key string) string {
	if raw, present := config[key]; present {
		if v, ok := raw.(string); ok && v != "" {
			return v
		}
	}
	if f, ok := s.Field(key); ok {
		if v, ok := f.Default.(string); ok {
			return v
		}
	}
	return ""
}

func (f SettingField) check(raw any) string {
	switch f.Type {
	case SettingInteger:
		n, err := toInt(raw)
		if err != nil {
			return IntegerMessage
		}
		if (f.Min != 0 || f.Max != 0) && (n < f.Min || n > f.Max) {
			return fmt.Sprintf("Enter a number between %d and %d.", f.Min, f.Max)
		}
	case SettingBoolean:
		if _, ok := raw.(bool); !ok {
			return BooleanMessage
		}
	case SettingString, SettingSecret:
		if _, ok := raw.(string); !ok {
			return TextMessage
		}
	}
	return ""
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("%v is not a whole number", raw)
}
