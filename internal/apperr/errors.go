package apperr

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrMissingAttribute     = errors.New("missing attribute")
	ErrInconsistentTopology = errors.New("inconsistent topology")
	ErrCycleDetected        = errors.New("cycle detected")
	ErrOutOfBounds          = errors.New("out of bounds")
	ErrNoFlowPath           = errors.New("no flow path")
	ErrGridMismatch         = errors.New("grid mismatch")
	ErrInsufficientSample   = errors.New("insufficient sample")
)

// Skippable reports whether err only disqualifies a single sample point
// rather than the whole run.
func Skippable(err error) bool {
	return errors.Is(err, ErrOutOfBounds) || errors.Is(err, ErrNoFlowPath)
}
