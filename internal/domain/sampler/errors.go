package sampler

import (
	"errors"
	"fmt"
)

// Sentinel kinds for sampler errors. Callers match them with errors.Is.
var (
	ErrInvalidConfig   = errors.New("invalid sampler config")
	ErrInvalidSamples  = errors.New("invalid samples")
	ErrSampling        = errors.New("sampling failed")
	ErrSamplingTimeout = errors.New("sampling budget exceeded")
)

// SamplingError reports where a chain failed. It unwraps to ErrSampling.
type SamplingError struct {
	Chain     int
	Iteration int
	Reason    string
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("%s: chain %d at iteration %d: %s", ErrSampling, e.Chain, e.Iteration, e.Reason)
}

func (e *SamplingError) Unwrap() error { return ErrSampling }
