package service

import (
	"time"

	"github.com/okian/volbreak/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDraws sets the number of retained draws per chain.
func WithDraws(draws int) Option {
	return func(s *Service) { s.draws = draws }
}

// WithTune sets the number of adaptation iterations per chain.
func WithTune(tune int) Option {
	return func(s *Service) { s.tune = tune }
}

// WithChains sets the number of parallel chains.
func WithChains(chains int) Option {
	return func(s *Service) { s.chains = chains }
}

// WithSeed makes every run of the service reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seed = &seed }
}

// WithTimeout bounds each sampling run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithIterationBudget caps tune+draws per chain. Zero disables the cap.
func WithIterationBudget(n int) Option {
	return func(s *Service) { s.budget = n }
}

// WithTargetAcceptance sets the acceptance rate scale proposals adapt towards.
func WithTargetAcceptance(rate float64) Option {
	return func(s *Service) { s.targetAccept = rate }
}

// WithWindow restricts AnalyzeDataset to prices dated within [start, end].
// Zero bounds are open.
func WithWindow(start, end time.Time) Option {
	return func(s *Service) {
		s.windowStart = start
		s.windowEnd = end
	}
}

// WithEventWindowDays sets how far from the changepoint events are reported.
func WithEventWindowDays(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.eventWindowDays = days
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
