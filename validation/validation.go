// Package validation checks user input before it touches the store or the
// backend.
package validation

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error lists the offending fields and the rule each one broke.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Field builds an Error for a single field.
func Field(name, rule string) *Error {
	return &Error{Fields: map[string]string{name: rule}}
}

// Struct validates v against its `validate` tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &Error{Fields: make(map[string]string, len(ves))}
	for _, fe := range ves {
		out.Fields[fe.Field()] = fe.Tag()
	}
	return out
}

// Is reports whether err is an input validation failure.
func Is(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}
