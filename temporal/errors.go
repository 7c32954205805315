package temporal

import "errors"

// ErrInvalidConfig indicates enforcer configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid temporal enforcer configuration")
