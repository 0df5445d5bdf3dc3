package sampler

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/okian/volbreak/internal/domain/changepoint"
)

// Proposal adaptation constants.
const (
	defaultInitialStep = 0.25
	adaptDecay         = 0.6
	minLogStep         = -12.0
	maxLogStep         = 3.0
)

var (
	errNoTauMass      = errors.New("tau conditional has no finite mass")
	errNaNDensity     = errors.New("log density evaluated to NaN")
	errInfiniteTarget = errors.New("log density diverged to +Inf")
)

// tauStep draws tau from its exact full conditional, a categorical
// distribution over the finite domain. Scratch buffers belong to one chain.
type tauStep struct {
	model *changepoint.Model
	logp  []float64
	cum   []float64
}

func newTauStep(m *changepoint.Model) *tauStep {
	lo, hi := m.TauDomain()
	size := hi - lo + 1
	return &tauStep{
		model: m,
		logp:  make([]float64, size),
		cum:   make([]float64, size),
	}
}

func (t *tauStep) step(r *rand.Rand, st *changepoint.State) error {
	t.model.TauLogConditional(t.logp, st.Sigma1, st.Sigma2)

	maxLP := math.Inf(-1)
	for _, lp := range t.logp {
		if math.IsNaN(lp) {
			return errNaNDensity
		}
		if lp > maxLP {
			maxLP = lp
		}
	}
	if math.IsInf(maxLP, 0) {
		return errNoTauMass
	}

	var total float64
	for i, lp := range t.logp {
		total += math.Exp(lp - maxLP)
		t.cum[i] = total
	}

	u := r.Float64() * total
	idx := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > u })
	if idx == len(t.cum) {
		idx = len(t.cum) - 1
	}

	lo, _ := t.model.TauDomain()
	st.Tau = lo + idx
	return nil
}

// scaleStep is a random-walk Metropolis update on log(sigma). During tuning
// the log proposal scale follows a Robbins-Monro recursion towards target.
type scaleStep struct {
	name     string
	logStep  float64
	target   float64
	accepted int
	proposed int
}

func newScaleStep(name string, target float64) *scaleStep {
	return &scaleStep{
		name:    name,
		logStep: math.Log(defaultInitialStep),
		target:  target,
	}
}

// step proposes a new scale from cur. logTarget is the log density of sigma
// itself; the Jacobian of the log transform is added here.
func (s *scaleStep) step(r *rand.Rand, cur float64, logTarget func(float64) float64) (float64, bool, error) {
	u := math.Log(cur)
	uProp := u + math.Exp(s.logStep)*r.NormFloat64()
	prop := math.Exp(uProp)
	s.proposed++

	// Proposals that under- or overflow leave the support and are rejected.
	if prop == 0 || math.IsInf(prop, 1) {
		return cur, false, nil
	}

	lpProp := logTarget(prop)
	switch {
	case math.IsNaN(lpProp):
		return cur, false, errNaNDensity
	case math.IsInf(lpProp, 1):
		return cur, false, errInfiniteTarget
	}
	lpCur := logTarget(cur)

	if math.Log(r.Float64()) < (lpProp+uProp)-(lpCur+u) {
		s.accepted++
		return prop, true, nil
	}
	return cur, false, nil
}

// adapt moves the proposal scale after tuning iteration t.
func (s *scaleStep) adapt(t int, accepted bool) {
	var a float64
	if accepted {
		a = 1
	}
	eta := math.Pow(float64(t+1), -adaptDecay)
	s.logStep = math.Min(maxLogStep, math.Max(minLogStep, s.logStep+eta*(a-s.target)))
}

// resetCounters starts acceptance bookkeeping afresh, once tuning ends.
func (s *scaleStep) resetCounters() {
	s.accepted, s.proposed = 0, 0
}

func (s *scaleStep) acceptanceRate() float64 {
	if s.proposed == 0 {
		return 0
	}
	return float64(s.accepted) / float64(s.proposed)
}

func (s *scaleStep) stepSize() float64 { return math.Exp(s.logStep) }
