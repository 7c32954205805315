package video

import "errors"

// Sentinel errors shared across pipeline stages. These enable reliable
// classification with errors.Is().
var (
	// ErrNilFrame indicates a nil frame was passed where a frame is required.
	ErrNilFrame = errors.New("frame cannot be nil")

	// ErrShapeMismatch indicates two frames differ in dimensions where
	// equality is required. Mismatches are always surfaced, never cropped.
	ErrShapeMismatch = errors.New("frame shape mismatch")

	// ErrInvalidDimensions indicates non-positive or unsupported dimensions.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")
)
