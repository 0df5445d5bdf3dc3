// Package changepoint declares the single-changepoint volatility model: a
// discrete switch day tau, two positive scales sigma_1 and sigma_2, and a
// zero-mean Gaussian likelihood whose scale switches from sigma_1 to sigma_2
// on day tau.
package changepoint

import (
	"fmt"
	"math"

	"github.com/okian/volbreak/internal/domain/series"
	"gonum.org/v1/gonum/stat/distuv"
)

// Latent variable names, shared with samplers and summaries.
const (
	NameTau    = "tau"
	NameSigma1 = "sigma_1"
	NameSigma2 = "sigma_2"
)

// scalePriorRate is the rate of the Exponential prior on both scales.
const scalePriorRate = 1.0

var logTwoPi = math.Log(2 * math.Pi)

// Kind distinguishes discrete from continuous latent variables.
type Kind int

const (
	Discrete Kind = iota
	Continuous
)

func (k Kind) String() string {
	switch k {
	case Discrete:
		return "discrete"
	case Continuous:
		return "continuous"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Latent describes one latent variable and its support.
type Latent struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64
}

// State is a candidate assignment of every latent variable.
type State struct {
	Tau    int
	Sigma1 float64
	Sigma2 float64
}

// SigmaAt applies the variance-selection rule for day i.
func (s State) SigmaAt(i int) float64 {
	if i < s.Tau {
		return s.Sigma1
	}
	return s.Sigma2
}

// Model is the generative model bound to one return series. It holds no
// mutable state and may be shared by concurrent chains.
type Model struct {
	series  *series.Series
	latents []Latent
	prior   distuv.Exponential
	// logTauPrior is the log mass of each tau under the uniform prior.
	logTauPrior float64
}

// Build binds the model to s. The series must hold at least two observations
// so tau's domain [1, N-1] is non-empty; N == 2 leaves tau fixed at 1.
func Build(s *series.Series) (*Model, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil series", ErrInvalidInput)
	}
	n := s.Len()
	if n < series.MinLength {
		return nil, fmt.Errorf("%w: series of length %d leaves tau without support", ErrInvalidInput, n)
	}

	return &Model{
		series: s,
		latents: []Latent{
			{Name: NameTau, Kind: Discrete, Lower: 1, Upper: float64(n - 1)},
			{Name: NameSigma1, Kind: Continuous, Lower: 0, Upper: math.Inf(1)},
			{Name: NameSigma2, Kind: Continuous, Lower: 0, Upper: math.Inf(1)},
		},
		prior:       distuv.Exponential{Rate: scalePriorRate},
		logTauPrior: -math.Log(float64(n - 1)),
	}, nil
}

// Series returns the bound observations.
func (m *Model) Series() *series.Series { return m.series }

// N returns the number of observations.
func (m *Model) N() int { return m.series.Len() }

// Latents lists the latent variable descriptors in declaration order.
func (m *Model) Latents() []Latent {
	out := make([]Latent, len(m.latents))
	copy(out, m.latents)
	return out
}

// TauDomain returns the inclusive bounds of tau's support.
func (m *Model) TauDomain() (lo, hi int) { return 1, m.N() - 1 }

// InSupport reports whether st lies inside the prior support.
func (m *Model) InSupport(st State) bool {
	lo, hi := m.TauDomain()
	return st.Tau >= lo && st.Tau <= hi && st.Sigma1 > 0 && st.Sigma2 > 0 &&
		!math.IsInf(st.Sigma1, 1) && !math.IsInf(st.Sigma2, 1)
}

// LogPrior returns the joint log prior density of st, or -Inf outside the support.
func (m *Model) LogPrior(st State) float64 {
	if !m.InSupport(st) {
		return math.Inf(-1)
	}
	return m.logTauPrior + m.ScaleLogPrior(st.Sigma1) + m.ScaleLogPrior(st.Sigma2)
}

// ScaleLogPrior is the log prior density of a single scale.
func (m *Model) ScaleLogPrior(sigma float64) float64 {
	if sigma <= 0 {
		return math.Inf(-1)
	}
	return m.prior.LogProb(sigma)
}

// LogLikelihood evaluates the observation density day by day. It is the
// reference definition; samplers use the sufficient-statistic forms below.
func (m *Model) LogLikelihood(st State) float64 {
	if !m.InSupport(st) {
		return math.Inf(-1)
	}
	var ll float64
	for i := 0; i < m.N(); i++ {
		ll += distuv.Normal{Mu: 0, Sigma: st.SigmaAt(i)}.LogProb(m.series.At(i))
	}
	return ll
}

// LogProb is the unnormalised log posterior density of st.
func (m *Model) LogProb(st State) float64 {
	lp := m.LogPrior(st)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + m.LogLikelihood(st)
}

// SegmentLogLikelihood is the zero-mean Gaussian log density of n
// observations whose squares sum to sumSq, all drawn with scale sigma.
func SegmentLogLikelihood(n int, sumSq, sigma float64) float64 {
	if n == 0 {
		return 0
	}
	fn := float64(n)
	return -0.5*fn*logTwoPi - fn*math.Log(sigma) - sumSq/(2*sigma*sigma)
}

// BeforeLogLikelihood is the likelihood of days [0, tau) under sigma.
func (m *Model) BeforeLogLikelihood(tau int, sigma float64) float64 {
	return SegmentLogLikelihood(tau, m.series.SumSquares(0, tau), sigma)
}

// AfterLogLikelihood is the likelihood of days [tau, N) under sigma.
func (m *Model) AfterLogLikelihood(tau int, sigma float64) float64 {
	n := m.N()
	return SegmentLogLikelihood(n-tau, m.series.SumSquares(tau, n), sigma)
}

// FastLogProb equals LogProb but costs O(1) via prefix sums of squares.
func (m *Model) FastLogProb(st State) float64 {
	lp := m.LogPrior(st)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + m.BeforeLogLikelihood(st.Tau, st.Sigma1) + m.AfterLogLikelihood(st.Tau, st.Sigma2)
}

// TauLogConditional fills dst[k-1] with the log full conditional of tau = k
// given both scales, up to a shared additive constant, for every k in the
// domain. dst must have length N-1.
func (m *Model) TauLogConditional(dst []float64, sigma1, sigma2 float64) {
	lo, hi := m.TauDomain()
	for k := lo; k <= hi; k++ {
		dst[k-lo] = m.BeforeLogLikelihood(k, sigma1) + m.AfterLogLikelihood(k, sigma2)
	}
}
