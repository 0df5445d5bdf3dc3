package sampler

import (
	"fmt"

	"github.com/okian/volbreak/internal/domain/changepoint"
)

// ChainStats describes how one chain's scale proposals behaved over its
// retained draws.
type ChainStats struct {
	Sigma1Accept float64
	Sigma2Accept float64
	Sigma1Step   float64
	Sigma2Step   float64
}

// Samples holds pooled posterior draws. Draws are stored chain-major: draw d
// of chain c sits at index c*Draws+d. Samples must not be mutated once built.
type Samples struct {
	Chains int
	Draws  int
	Tau    []int
	Sigma1 []float64
	Sigma2 []float64
	Stats  []ChainStats
}

// FromDraws builds Samples from caller-supplied draws, e.g. a trace stored
// elsewhere. All three slices must have the same length, divisible by chains.
func FromDraws(chains int, tau []int, sigma1, sigma2 []float64) (*Samples, error) {
	n := len(tau)
	if chains < 1 {
		return nil, fmt.Errorf("%w: chains must be >= 1, got %d", ErrInvalidSamples, chains)
	}
	if len(sigma1) != n || len(sigma2) != n {
		return nil, fmt.Errorf("%w: mismatched lengths tau=%d sigma_1=%d sigma_2=%d", ErrInvalidSamples, n, len(sigma1), len(sigma2))
	}
	if n == 0 || n%chains != 0 {
		return nil, fmt.Errorf("%w: %d draws cannot be split across %d chains", ErrInvalidSamples, n, chains)
	}

	s := &Samples{
		Chains: chains,
		Draws:  n / chains,
		Tau:    make([]int, n),
		Sigma1: make([]float64, n),
		Sigma2: make([]float64, n),
		Stats:  make([]ChainStats, chains),
	}
	copy(s.Tau, tau)
	copy(s.Sigma1, sigma1)
	copy(s.Sigma2, sigma2)
	return s, nil
}

// Len returns the pooled number of draws.
func (s *Samples) Len() int { return len(s.Tau) }

// Draw returns the i-th pooled joint draw.
func (s *Samples) Draw(i int) changepoint.State {
	return changepoint.State{Tau: s.Tau[i], Sigma1: s.Sigma1[i], Sigma2: s.Sigma2[i]}
}

// Chain returns views of chain c's draws. The views alias the pooled buffers.
func (s *Samples) Chain(c int) (tau []int, sigma1, sigma2 []float64) {
	lo, hi := c*s.Draws, (c+1)*s.Draws
	return s.Tau[lo:hi:hi], s.Sigma1[lo:hi:hi], s.Sigma2[lo:hi:hi]
}
