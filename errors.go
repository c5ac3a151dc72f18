package subwatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateProvider = errors.New("duplicate provider id")
	ErrInvalidProvider   = errors.New("invalid provider")
	ErrNoMatch           = errors.New("no provider matched the URL")
	ErrNotConfigured     = errors.New("provider is not configured")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// A ValidationError maps setting keys to user-facing messages. Its keys are
// always a subset of the keys declared by the provider's Settings schema, so
// callers can render each message next to the offending form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid configuration"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// An InvalidURLError reports a URL that does not have the shape the provider
// expects. Recoverable by prompting for a corrected URL.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid URL %q", e.URL)
	}
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Reason)
}
