// Package series validates raw return values and exposes them as an immutable,
// chronologically ordered series.
package series

import (
	"fmt"
	"math"
)

// MinLength is the smallest number of usable observations a series may hold.
const MinLength = 2

// Series is an immutable ordered collection of log-returns. Index 0 is the
// earliest day. A Series is safe for concurrent reads.
type Series struct {
	values []float64
	// prefix[i] holds the sum of squares of values[0:i].
	prefix []float64
	// offset is the number of leading entries dropped from the raw input.
	offset int
}

// New validates raw and returns a Series. Leading and trailing NaN entries are
// dropped (a differencing step usually leaves one at the head); any other
// non-finite value, or fewer than MinLength remaining values, yields
// ErrInvalidInput.
func New(raw []float64) (*Series, error) {
	lo, hi := 0, len(raw)
	for lo < hi && math.IsNaN(raw[lo]) {
		lo++
	}
	for hi > lo && math.IsNaN(raw[hi-1]) {
		hi--
	}

	if hi-lo < MinLength {
		return nil, fmt.Errorf("%w: %d usable observations, need at least %d", ErrInvalidInput, hi-lo, MinLength)
	}

	values := make([]float64, hi-lo)
	prefix := make([]float64, hi-lo+1)
	for i, v := range raw[lo:hi] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value %v at index %d", ErrInvalidInput, v, lo+i)
		}
		values[i] = v
		prefix[i+1] = prefix[i] + v*v
	}

	return &Series{values: values, prefix: prefix, offset: lo}, nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.values) }

// At returns the i-th observation.
func (s *Series) At(i int) float64 { return s.values[i] }

// Values returns a copy of the observations.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Offset reports how many leading entries of the raw input were dropped, so
// callers can map a series index back onto their own aligned data.
func (s *Series) Offset() int { return s.offset }

// SumSquares returns the sum of squared observations over [i, j).
func (s *Series) SumSquares(i, j int) float64 {
	return s.prefix[j] - s.prefix[i]
}
