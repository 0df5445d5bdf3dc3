package sampler

import (
	"time"

	"github.com/okian/volbreak/pkg/logger"
)

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithDraws sets the number of retained draws per chain.
func WithDraws(draws int) Option {
	return func(s *Sampler) { s.draws = draws }
}

// WithTune sets the number of discarded adaptation iterations per chain.
func WithTune(tune int) Option {
	return func(s *Sampler) { s.tune = tune }
}

// WithChains sets the number of independent chains.
func WithChains(chains int) Option {
	return func(s *Sampler) { s.chains = chains }
}

// WithSeed makes runs reproducible.
func WithSeed(seed int64) Option {
	return func(s *Sampler) {
		s.seed = uint64(seed) //nolint:gosec // the bit pattern is all that matters
		s.seeded = true
	}
}

// WithTimeout bounds the wall-clock time of a Sample call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithIterationBudget caps tune+draws iterations per chain. Zero disables it.
func WithIterationBudget(n int) Option {
	return func(s *Sampler) {
		if n >= 0 {
			s.budget = n
		}
	}
}

// WithTargetAcceptance sets the acceptance rate the scale proposals adapt towards.
func WithTargetAcceptance(rate float64) Option {
	return func(s *Sampler) { s.targetAccept = rate }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}
