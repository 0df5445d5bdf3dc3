// Package summary reduces posterior draws to point estimates, 95% credible
// intervals and convergence diagnostics.
package summary

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/volbreak/internal/domain/sampler"
	"gonum.org/v1/gonum/stat"
)

// Credible interval bounds, in percent.
const (
	LowerPercentile = 2.5
	UpperPercentile = 97.5
)

// Estimate summarises the draws of one continuous latent variable.
type Estimate struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// Diagnostics holds Gelman-Rubin statistics. Values near 1 indicate the chains
// agree; above roughly 1.01 they have not mixed.
type Diagnostics struct {
	RHatSigma1 *float64 `json:"rhat_sigma_1,omitempty"`
	RHatSigma2 *float64 `json:"rhat_sigma_2,omitempty"`
	RHatTau    *float64 `json:"rhat_tau,omitempty"`
}

// Summary is the read-only reduction of a set of posterior draws.
type Summary struct {
	// ChangepointIndex is the posterior mode of tau, a 0-based day offset
	// into the series: the first day governed by the post-break scale.
	ChangepointIndex       int          `json:"changepoint_index"`
	ChangepointMean        float64      `json:"changepoint_mean"`
	ChangepointProbability float64      `json:"changepoint_probability"`
	SigmaBefore            Estimate     `json:"sigma_before"`
	SigmaAfter             Estimate     `json:"sigma_after"`
	VolatilityChangePct    float64      `json:"volatility_change_pct"`
	Samples                int          `json:"samples"`
	Diagnostics            *Diagnostics `json:"diagnostics,omitempty"`
}

// Summarize reduces s. It fails with ErrDegenerateEstimate when there are no
// draws or the pre-break mean volatility is zero. s is not modified.
func Summarize(s *sampler.Samples) (Summary, error) {
	if s == nil || s.Len() == 0 {
		return Summary{}, fmt.Errorf("%w: no draws", ErrDegenerateEstimate)
	}

	mode, share := tauMode(s.Tau)
	before := estimate(s.Sigma1)
	after := estimate(s.Sigma2)

	if before.Mean == 0 {
		return Summary{}, fmt.Errorf("%w: mean of %d sigma_1 draws is zero, volatility change is undefined", ErrDegenerateEstimate, s.Len())
	}
	change := (after.Mean - before.Mean) / before.Mean * 100
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return Summary{}, fmt.Errorf("%w: volatility change evaluated to %v", ErrDegenerateEstimate, change)
	}

	tauF := make([]float64, len(s.Tau))
	for i, v := range s.Tau {
		tauF[i] = float64(v)
	}

	return Summary{
		ChangepointIndex:       mode,
		ChangepointMean:        stat.Mean(tauF, nil),
		ChangepointProbability: share,
		SigmaBefore:            before,
		SigmaAfter:             after,
		VolatilityChangePct:    change,
		Samples:                s.Len(),
		Diagnostics:            diagnose(s, tauF),
	}, nil
}

// tauMode returns the most frequent tau, ties going to the lowest value, and
// the share of draws at that value.
func tauMode(tau []int) (int, float64) {
	counts := make(map[int]int, 64)
	for _, v := range tau {
		counts[v]++
	}
	mode, best := 0, -1
	for v, c := range counts {
		if c > best || (c == best && v < mode) {
			mode, best = v, c
		}
	}
	return mode, float64(best) / float64(len(tau))
}

func estimate(x []float64) Estimate {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	e := Estimate{
		Mean:  stat.Mean(x, nil),
		Lower: Percentile(sorted, LowerPercentile),
		Upper: Percentile(sorted, UpperPercentile),
	}
	if len(x) > 1 {
		e.StdDev = stat.StdDev(x, nil)
	}
	return e
}

// Percentile returns the p-th percentile (0..100) of sorted data, linearly
// interpolating between the two nearest order statistics.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1:
		return sorted[0]
	}
	h := (float64(n) - 1) * p / 100
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
