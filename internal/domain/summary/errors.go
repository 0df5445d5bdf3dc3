package summary

import "errors"

// Sentinel kinds for summary errors.
var (
	ErrDegenerateEstimate = errors.New("degenerate posterior estimate")
)
