package schema

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed input record. Records are rejected at
// construction time and never coerced beyond whitespace trimming.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// requireText trims s and fails when nothing is left.
func requireText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "cannot be empty")
	}
	return s, nil
}
