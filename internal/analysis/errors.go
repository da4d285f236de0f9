package analysis

import (
	"errors"
	"fmt"
)

// All scoring failures are synchronous validation errors raised at the point
// of malformed input. None are retryable, and a failed validation produces no
// report at all.
var (
	ErrEmptySequence     = errors.New("token probabilities must be non-empty")
	ErrLengthMismatch    = errors.New("tokens and probabilities must have the same length")
	ErrUnsupportedFormat = errors.New("unsupported tokenized response format")
)

// ProbabilityRangeError reports a probability outside (0, 1] and the position
// of the offending token. Out-of-range values are rejected, never clamped.
type ProbabilityRangeError struct {
	Position int
	Value    float64
}

func (e *ProbabilityRangeError) Error() string {
	return fmt.Sprintf("probability %g at position %d is outside (0, 1]", e.Value, e.Position)
}
