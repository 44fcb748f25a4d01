package codec

import "fmt"

// EncodingError is returned when a game cannot be represented in the binary layout.
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode game: %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError is returned for truncated or corrupt buffers.
type DecodingError struct {
	Field string
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode game: %s: %v", e.Field, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func encodingErr(field, format string, args ...any) error {
	return &EncodingError{Field: field, Err: fmt.Errorf(format, args...)}
}

func decodingErr(field, format string, args ...any) error {
	return &DecodingError{Field: field, Err: fmt.Errorf(format, args...)}
}
