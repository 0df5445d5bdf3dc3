// Package sampler draws from the joint posterior of the changepoint model with
// parallel Markov chains. Each iteration updates tau by an exact categorical
// draw from its full conditional and each scale by adaptive random-walk
// Metropolis on the log axis.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/okian/volbreak/internal/domain/changepoint"
	"github.com/okian/volbreak/pkg/logger"
	"github.com/okian/volbreak/pkg/metrics"
)

// Default sampler configuration constants.
const (
	DefaultDraws            = 2000
	DefaultTune             = 3000
	DefaultChains           = 4
	DefaultTargetAcceptance = 0.44

	// seedMixer decorrelates the two PCG seed words of the master stream.
	seedMixer = 0x9E3779B97F4A7C15
)

// Sampler runs MCMC over a changepoint model. A Sampler holds only
// configuration and may be reused across models and goroutines.
type Sampler struct {
	draws        int
	tune         int
	chains       int
	seed         uint64
	seeded       bool
	timeout      time.Duration
	budget       int
	targetAccept float64

	logger logger.Logger
}

// New creates a Sampler with the given options.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		draws:        DefaultDraws,
		tune:         DefaultTune,
		chains:       DefaultChains,
		targetAccept: DefaultTargetAcceptance,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("sampler")
	}
	return s
}

// Validate reports configuration errors as ErrInvalidConfig.
func (s *Sampler) Validate() error {
	switch {
	case s.draws < 1:
		return fmt.Errorf("%w: draws must be >= 1, got %d", ErrInvalidConfig, s.draws)
	case s.tune < 0:
		return fmt.Errorf("%w: tune must be >= 0, got %d", ErrInvalidConfig, s.tune)
	case s.chains < 1:
		return fmt.Errorf("%w: chains must be >= 1, got %d", ErrInvalidConfig, s.chains)
	case s.targetAccept <= 0 || s.targetAccept >= 1:
		return fmt.Errorf("%w: target acceptance must lie in (0, 1), got %v", ErrInvalidConfig, s.targetAccept)
	}
	return nil
}

// Sample runs every chain in its own goroutine and pools their retained draws.
// It returns ErrSampling (as *SamplingError) on numerical failure and
// ErrSamplingTimeout when ctx, the timeout or the iteration budget runs out;
// partial draws are never returned.
func (s *Sampler) Sample(ctx context.Context, m *changepoint.Model) (*Samples, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidConfig)
	}

	seed := s.seed
	if !s.seeded {
		seed = rand.Uint64() //nolint:gosec // unseeded runs are meant to differ
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.timeout)
		defer cancelTimeout()
	}
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	start := time.Now()
	s.logger.Info(ctx, "sampling started",
		logger.Int("observations", m.N()),
		logger.Int("chains", s.chains),
		logger.Int("draws", s.draws),
		logger.Int("tune", s.tune),
		logger.Any("seed", seed),
	)

	// Chain c owns [c*draws, (c+1)*draws) of the pooled buffers until the join.
	out := &Samples{
		Chains: s.chains,
		Draws:  s.draws,
		Tau:    make([]int, s.chains*s.draws),
		Sigma1: make([]float64, s.chains*s.draws),
		Sigma2: make([]float64, s.chains*s.draws),
		Stats:  make([]ChainStats, s.chains),
	}

	master := rand.New(rand.NewPCG(seed, seed^seedMixer)) //nolint:gosec // statistical, not cryptographic
	results := make([]chan chainResult, s.chains)
	for c := 0; c < s.chains; c++ {
		tau, sigma1, sigma2 := out.Chain(c)
		ch := &chain{
			id:         c,
			model:      m,
			rng:        rand.New(rand.NewPCG(master.Uint64(), master.Uint64())), //nolint:gosec // statistical, not cryptographic
			tune:       s.tune,
			draws:      s.draws,
			budget:     s.budget,
			tauStep:    newTauStep(m),
			sigma1Step: newScaleStep(changepoint.NameSigma1, s.targetAccept),
			sigma2Step: newScaleStep(changepoint.NameSigma2, s.targetAccept),
			tau:        tau,
			sigma1:     sigma1,
			sigma2:     sigma2,
			logger:     s.logger.Named("chain-" + strconv.Itoa(c)),
		}

		results[c] = make(chan chainResult, 1)
		go func(ch *chain, done chan<- chainResult) {
			res := ch.run(runCtx)
			if res.err != nil {
				// Siblings stop early; their results are discarded.
				cancel()
			}
			done <- res
		}(ch, results[c])
	}

	var samplingErr, timeoutErr error
	for _, done := range results {
		res := <-done
		switch {
		case res.err == nil:
			out.Stats[res.id] = res.stats
		case errors.Is(res.err, ErrSampling):
			if samplingErr == nil {
				samplingErr = res.err
			}
		default:
			if timeoutErr == nil {
				timeoutErr = res.err
			}
		}
	}

	if samplingErr != nil {
		metrics.RecordErrorByComponent("sampler", metrics.StatusSampling)
		s.logger.Error(ctx, "sampling failed", logger.Error(samplingErr), logger.Duration("elapsed", time.Since(start)))
		return nil, samplingErr
	}
	if timeoutErr != nil {
		metrics.RecordErrorByComponent("sampler", metrics.StatusTimeout)
		s.logger.Error(ctx, "sampling aborted", logger.Error(timeoutErr), logger.Duration("elapsed", time.Since(start)))
		return nil, timeoutErr
	}

	s.logger.Info(ctx, "sampling finished",
		logger.Int("samples", out.Len()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
