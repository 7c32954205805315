package interpolate

import "errors"

var (
	// ErrInvalidConfig indicates interpolator configuration or arguments
	// that fail validation.
	ErrInvalidConfig = errors.New("invalid interpolator configuration")

	// ErrNoKeyframes indicates keyframe interpolation was requested with an
	// empty keyframe list.
	ErrNoKeyframes = errors.New("no keyframes provided")
)
