package decoder

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal decode failures
var (
	ErrEmptyInput        = errors.New("empty audio input")
	ErrTooShort          = errors.New("decoded audio too short")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// StrategyError records why a single strategy could not decode the input
type StrategyError struct {
	Strategy string
	Err      error
}

func (e StrategyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e StrategyError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError is returned when every strategy failed.
// Causes are kept in the order the strategies were attempted.
type UnsupportedFormatError struct {
	Causes []StrategyError
}

func (e *UnsupportedFormatError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrUnsupportedFormat, strings.Join(parts, "; "))
}

// Is reports whether target is ErrUnsupportedFormat
func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// TooShortError reports a successful decode that produced too few samples
type TooShortError struct {
	Strategy string
	Samples  int
	Min      int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("%s: %d samples from %s, need at least %d", ErrTooShort, e.Samples, e.Strategy, e.Min)
}

// Is reports whether target is ErrTooShort
func (e *TooShortError) Is(target error) bool {
	return target == ErrTooShort
}

// IsClientError reports whether err is caused by the submitted audio rather
// than by the service
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrTooShort) || errors.Is(err, ErrUnsupportedFormat)
}
