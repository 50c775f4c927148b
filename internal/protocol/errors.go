package protocol

import (
	"errors"
	"fmt"
)

// Decode errors. Decoding is total: malformed input yields one of these,
// never a panic. Callers match with errors.Is.
var (
	ErrTooShort               = errors.New("packet too short")
	ErrUnknownVersion         = errors.New("unknown comm version")
	ErrInvalidFlagCombination = errors.New("invalid flag combination")
	ErrMalformedTag           = errors.New("malformed tag")
)

func newDecodeError(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
