package flow

import "errors"

// ErrInvalidConfig indicates analyzer configuration that fails validation.
// Configuration errors surface at construction, before any frame is touched.
var ErrInvalidConfig = errors.New("invalid flow analyzer configuration")
