package imu

import "fmt"

// DecodeError indicates a payload that is not a JSON object.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode sensor payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a decoded payload that is not a valid sample.
// Field is empty when the payload matches neither wire shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid sensor sample: " + e.Reason
	}
	return fmt.Sprintf("invalid sensor sample: %s %s", e.Field, e.Reason)
}
