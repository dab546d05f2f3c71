// Package constraints provides price, margin and time constraint value objects.
//
// Everything here is pure: no I/O, no logging, no dependency on other
// PriceKeeper packages. Runtime functions clamp; authoring validation rejects.
package constraints

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every ValidationErrors value.
var ErrInvalid = errors.New("invalid constraint")

// FieldError describes one rejected authoring field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects field-level authoring errors.
// A nil or empty value means the input is valid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalid) match.
func (v ValidationErrors) Unwrap() error {
	return ErrInvalid
}

// Add appends a field error.
func (v *ValidationErrors) Add(field, format string, args ...any) {
	*v = append(*v, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all errors of other, prefixing their field names.
func (v *ValidationErrors) Merge(prefix string, other ValidationErrors) {
	for _, e := range other {
		field := e.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		*v = append(*v, FieldError{Field: field, Message: e.Message})
	}
}

// Err returns nil when no errors were collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
