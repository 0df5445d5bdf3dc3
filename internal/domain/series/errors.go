package series

import "errors"

// Sentinel kinds for series validation errors.
var (
	ErrInvalidInput = errors.New("invalid return series")
)
