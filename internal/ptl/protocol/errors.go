package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrInvalidField is wrapped by every ValidationError so callers can
	// test for outbound validation failures with errors.Is.
	ErrInvalidField = errors.New("protocol: invalid field")

	// ErrDecode is returned when an inbound frame is malformed.
	ErrDecode = errors.New("protocol: malformed frame")

	// ErrUnknownType is returned when an inbound frame carries a type code
	// that a controller never sends.
	ErrUnknownType = errors.New("protocol: unknown telegram type")
)

// ValidationError reports a malformed outbound field. Its Error text is the
// message shown to operators and kept stable across releases.
type ValidationError struct {
	Field string
	Value string
	msg   string
}

func (e *ValidationError) Error() string { return e.msg }

// Unwrap lets errors.Is match ErrInvalidField.
func (e *ValidationError) Unwrap() error { return ErrInvalidField }

func invalid(field, value string) *ValidationError {
	return &ValidationError{
		Field: field,
		Value: value,
		msg:   "Error: " + field + " " + value + " is invalid",
	}
}

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Frame  string
	Reason string
}

func (e *DecodeError) Error() string { return e.Reason }

// Unwrap lets errors.Is match ErrDecode.
func (e *DecodeError) Unwrap() error { return ErrDecode }
