package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Violation is a single failed rule on a field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// Errors aggregates every violation found while validating one input. The
// whole operation aborts on the first validation failure, before any write.
type Errors struct {
	Violations []Violation
}

// NewErrors creates an empty violation list.
func NewErrors() *Errors {
	return &Errors{}
}

// Add appends a violation.
func (e *Errors) Add(field, rule, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Rule: rule, Message: message})
}

// HasViolations reports whether any rule failed.
func (e *Errors) HasViolations() bool {
	return len(e.Violations) > 0
}

// ErrOrNil returns the aggregate as an error, or nil when empty.
func (e *Errors) ErrOrNil() error {
	if e.HasViolations() {
		return e
	}
	return nil
}

// Error implements the error interface.
func (e *Errors) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	if len(e.Violations) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Violations[0].Error())
	}

	var lines []string
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.Error())
	}
	return fmt.Sprintf("validation failed:\n%s", strings.Join(lines, "\n"))
}

// IsValidation returns true if the error is a validation failure.
func IsValidation(err error) bool {
	var ve *Errors
	return errors.As(err, &ve)
}

// Single wraps one violation as an Errors value, for call sites that detect
// a standalone failure such as an id mismatch.
func Single(field, rule, message string) *Errors {
	e := NewErrors()
	e.Add(field, rule, message)
	return e
}
