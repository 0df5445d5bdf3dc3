package changepoint

import "errors"

// Sentinel kinds for model construction errors.
var (
	ErrInvalidInput = errors.New("invalid model input")
)
