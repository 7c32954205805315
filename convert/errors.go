package convert

import "errors"

var (
	// ErrInvalidFrameRate indicates a non-positive source or target rate.
	// Rate validation happens before any frame is processed.
	ErrInvalidFrameRate = errors.New("invalid frame rate")

	// ErrInvalidFactor indicates a non-positive slowdown/speedup factor.
	ErrInvalidFactor = errors.New("invalid retiming factor")

	// ErrEmptySequence indicates conversion was requested with no frames.
	ErrEmptySequence = errors.New("empty frame sequence")

	// ErrInvalidConfig indicates converter configuration that fails
	// validation.
	ErrInvalidConfig = errors.New("invalid converter configuration")
)
