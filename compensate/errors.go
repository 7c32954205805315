package compensate

import "errors"

var (
	// ErrInvalidMode indicates an unknown compensation mode.
	ErrInvalidMode = errors.New("invalid compensation mode")

	// ErrInvalidConfig indicates compensator configuration that fails
	// validation.
	ErrInvalidConfig = errors.New("invalid compensator configuration")

	// ErrEmptySequence indicates stabilization was requested on an empty
	// frame sequence.
	ErrEmptySequence = errors.New("empty frame sequence")

	// ErrReferenceOutOfRange indicates a stabilization reference index
	// outside the sequence.
	ErrReferenceOutOfRange = errors.New("reference index out of range")
)
