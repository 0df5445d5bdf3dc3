package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/volbreak/internal/domain/changepoint"
	"github.com/okian/volbreak/pkg/logger"
	"github.com/okian/volbreak/pkg/metrics"
)

const (
	maxInitAttempts = 20
	// minScale is the smallest scale a chain may reach before it is declared
	// divergent; below it the posterior is piling onto the sigma -> 0 boundary.
	minScale = 1e-150
)

// chainResult is what one chain sends back over its channel.
type chainResult struct {
	id    int
	stats ChainStats
	err   error
}

// chain runs one Markov chain. It writes only into its own slices of the
// pooled sample buffers and reads the model, which is immutable.
type chain struct {
	id     int
	model  *changepoint.Model
	rng    *rand.Rand
	tune   int
	draws  int
	budget int

	tauStep    *tauStep
	sigma1Step *scaleStep
	sigma2Step *scaleStep

	// Output views owned by this chain until the join.
	tau    []int
	sigma1 []float64
	sigma2 []float64

	logger logger.Logger
}

func (c *chain) fail(it int, reason string) error {
	return &SamplingError{Chain: c.id, Iteration: it, Reason: reason}
}

// initialState draws a random starting point with a finite log density.
// Scales are jittered around the root mean square of the returns.
func (c *chain) initialState() (changepoint.State, error) {
	n := c.model.N()
	base := math.Sqrt(c.model.Series().SumSquares(0, n) / float64(n))
	if base == 0 || math.IsNaN(base) {
		base = 1
	}

	lo, hi := c.model.TauDomain()
	for attempt := 0; attempt < maxInitAttempts; attempt++ {
		st := changepoint.State{
			Tau:    lo + c.rng.IntN(hi-lo+1),
			Sigma1: base * math.Exp(c.rng.Float64()-0.5),
			Sigma2: base * math.Exp(c.rng.Float64()-0.5),
		}
		lp := c.model.FastLogProb(st)
		if !math.IsInf(lp, 0) && !math.IsNaN(lp) {
			return st, nil
		}
	}
	return changepoint.State{}, c.fail(0, fmt.Sprintf("no finite initial log-probability after %d attempts", maxInitAttempts))
}

// run executes tuning then sampling, honoring ctx for cancellation.
func (c *chain) run(ctx context.Context) chainResult {
	start := time.Now()
	metrics.ChainStarted()
	iterations := 0
	defer func() { metrics.ChainFinished(time.Since(start), iterations) }()

	res := chainResult{id: c.id}
	st, err := c.initialState()
	if err != nil {
		res.err = err
		return res
	}

	total := c.tune + c.draws
	for it := 0; it < total; it++ {
		if c.budget > 0 && it >= c.budget {
			res.err = fmt.Errorf("%w: chain %d hit the iteration budget of %d", ErrSamplingTimeout, c.id, c.budget)
			return res
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.err = fmt.Errorf("%w: chain %d stopped at iteration %d: %w", ErrSamplingTimeout, c.id, it, ctxErr)
			return res
		}

		if err := c.tauStep.step(c.rng, &st); err != nil {
			res.err = c.fail(it, "tau update: "+err.Error())
			return res
		}

		tau := st.Tau
		s1, ok1, err := c.sigma1Step.step(c.rng, st.Sigma1, func(sigma float64) float64 {
			return c.model.ScaleLogPrior(sigma) + c.model.BeforeLogLikelihood(tau, sigma)
		})
		if err != nil {
			res.err = c.fail(it, c.sigma1Step.name+" update: "+err.Error())
			return res
		}
		s2, ok2, err := c.sigma2Step.step(c.rng, st.Sigma2, func(sigma float64) float64 {
			return c.model.ScaleLogPrior(sigma) + c.model.AfterLogLikelihood(tau, sigma)
		})
		if err != nil {
			res.err = c.fail(it, c.sigma2Step.name+" update: "+err.Error())
			return res
		}
		st.Sigma1, st.Sigma2 = s1, s2
		iterations++

		if st.Sigma1 < minScale || st.Sigma2 < minScale {
			metrics.RecordDivergence()
			res.err = c.fail(it, "scale collapsed towards zero")
			return res
		}

		if it < c.tune {
			c.sigma1Step.adapt(it, ok1)
			c.sigma2Step.adapt(it, ok2)
			if it == c.tune-1 {
				c.sigma1Step.resetCounters()
				c.sigma2Step.resetCounters()
				c.logger.Debug(ctx, "tuning finished",
					logger.Float64(c.sigma1Step.name+"_step", c.sigma1Step.stepSize()),
					logger.Float64(c.sigma2Step.name+"_step", c.sigma2Step.stepSize()),
				)
			}
			continue
		}

		d := it - c.tune
		c.tau[d] = st.Tau
		c.sigma1[d] = st.Sigma1
		c.sigma2[d] = st.Sigma2
	}

	res.stats = ChainStats{
		Sigma1Accept: c.sigma1Step.acceptanceRate(),
		Sigma2Accept: c.sigma2Step.acceptanceRate(),
		Sigma1Step:   c.sigma1Step.stepSize(),
		Sigma2Step:   c.sigma2Step.stepSize(),
	}
	metrics.RecordAcceptance(c.sigma1Step.name, c.id, res.stats.Sigma1Accept, res.stats.Sigma1Step)
	metrics.RecordAcceptance(c.sigma2Step.name, c.id, res.stats.Sigma2Accept, res.stats.Sigma2Step)

	c.logger.Debug(ctx, "chain finished",
		logger.Duration("elapsed", time.Since(start)),
		logger.Float64(c.sigma1Step.name+"_accept", res.stats.Sigma1Accept),
		logger.Float64(c.sigma2Step.name+"_accept", res.stats.Sigma2Accept),
	)
	return res
}
