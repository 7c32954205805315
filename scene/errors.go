package scene

import "errors"

var (
	// ErrInvalidConfig indicates detector configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid scene detector configuration")

	// ErrInvalidFrameRate indicates a non-positive frame rate.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)
