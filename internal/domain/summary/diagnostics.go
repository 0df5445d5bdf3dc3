package summary

import (
	"math"

	"github.com/okian/volbreak/internal/domain/sampler"
	"gonum.org/v1/gonum/stat"
)

// diagnose computes R-hat for every latent variable. It returns nil when
// there are fewer than two chains or two draws. A statistic that is undefined
// because every chain is constant is left nil.
func diagnose(s *sampler.Samples, tau []float64) *Diagnostics {
	if s.Chains < 2 || s.Draws < 2 {
		return nil
	}
	return &Diagnostics{
		RHatSigma1: defined(RHat(s.Sigma1, s.Chains)),
		RHatSigma2: defined(RHat(s.Sigma2, s.Chains)),
		RHatTau:    defined(RHat(tau, s.Chains)),
	}
}

func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RHat is the Gelman-Rubin potential scale reduction factor of chain-major
// draws x split evenly over chains.
func RHat(x []float64, chains int) float64 {
	if chains < 2 || len(x)%chains != 0 {
		return math.NaN()
	}
	n := len(x) / chains
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, chains)
	var w float64
	for c := 0; c < chains; c++ {
		seg := x[c*n : (c+1)*n]
		means[c] = stat.Mean(seg, nil)
		w += stat.Variance(seg, nil)
	}
	w /= float64(chains)
	if w == 0 {
		return math.NaN()
	}

	b := float64(n) * stat.Variance(means, nil)
	fn := float64(n)
	varPlus := (fn-1)/fn*w + b/fn
	return math.Sqrt(varPlus / w)
}
