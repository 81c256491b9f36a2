package document

import "errors"

// PayloadError reports a structurally invalid input document, as opposed to a
// schema violation on an individual attribute.
type PayloadError struct {
	Message string
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	return "invalid payload: " + e.Message
}

// IsPayloadError returns true if the error is a PayloadError.
func IsPayloadError(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}
