// Package service binds series preparation, model construction, sampling and
// summarisation into a single analysis call, and maps its result back onto
// the calendar of a price dataset.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/volbreak/internal/adapters/dataset"
	"github.com/okian/volbreak/internal/domain/changepoint"
	"github.com/okian/volbreak/internal/domain/sampler"
	"github.com/okian/volbreak/internal/domain/series"
	"github.com/okian/volbreak/internal/domain/summary"
	"github.com/okian/volbreak/pkg/logger"
	"github.com/okian/volbreak/pkg/metrics"
)

const defaultEventWindowDays = 30

// Result is the outcome of one analysis run.
type Result struct {
	RunID        string `json:"run_id"`
	Observations int    `json:"observations"`
	// InputIndex is ChangepointIndex shifted back onto the caller's raw
	// slice, i.e. before leading NaNs were trimmed.
	InputIndex int `json:"input_index"`
	summary.Summary
	ChangepointDate string          `json:"changepoint_date,omitempty"`
	WindowStart     string          `json:"window_start,omitempty"`
	WindowEnd       string          `json:"window_end,omitempty"`
	NearbyEvents    []dataset.Event `json:"nearby_events,omitempty"`
	ElapsedMS       int64           `json:"elapsed_ms"`
}

// Service runs changepoint analyses. It keeps only configuration, so one
// Service may serve concurrent calls.
type Service struct {
	draws        int
	tune         int
	chains       int
	seed         *int64
	timeout      time.Duration
	budget       int
	targetAccept float64

	windowStart     time.Time
	windowEnd       time.Time
	eventWindowDays int

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		draws:           sampler.DefaultDraws,
		tune:            sampler.DefaultTune,
		chains:          sampler.DefaultChains,
		targetAccept:    sampler.DefaultTargetAcceptance,
		eventWindowDays: defaultEventWindowDays,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("analysis")
	}
	return s
}

func (s *Service) newSampler(l logger.Logger) *sampler.Sampler {
	opts := []sampler.Option{
		sampler.WithDraws(s.draws),
		sampler.WithTune(s.tune),
		sampler.WithChains(s.chains),
		sampler.WithTimeout(s.timeout),
		sampler.WithIterationBudget(s.budget),
		sampler.WithTargetAcceptance(s.targetAccept),
		sampler.WithLogger(l),
	}
	if s.seed != nil {
		opts = append(opts, sampler.WithSeed(*s.seed))
	}
	return sampler.New(opts...)
}

// Analyze detects the volatility changepoint of returns. Leading and trailing
// NaNs are trimmed; any failure is returned as a typed error from the series,
// changepoint, sampler or summary package and no partial result is produced.
func (s *Service) Analyze(ctx context.Context, returns []float64) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := s.logger.With(logger.String("run_id", runID))

	res, err := s.analyze(ctx, log, returns)
	elapsed := time.Since(start)
	metrics.RecordRun(statusOf(err), elapsed)
	if err != nil {
		log.Error(ctx, "analysis failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		return nil, err
	}

	res.RunID = runID
	res.ElapsedMS = elapsed.Milliseconds()
	metrics.RecordResult(res.ChangepointIndex, res.VolatilityChangePct)
	log.Info(ctx, "analysis finished",
		logger.Int("changepoint_index", res.ChangepointIndex),
		logger.Float64("sigma_before", res.SigmaBefore.Mean),
		logger.Float64("sigma_after", res.SigmaAfter.Mean),
		logger.Float64("volatility_change_pct", res.VolatilityChangePct),
		logger.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (s *Service) analyze(ctx context.Context, log logger.Logger, returns []float64) (*Result, error) {
	ser, err := series.New(returns)
	if err != nil {
		return nil, err
	}
	metrics.UpdateSeriesLength(ser.Len())

	model, err := changepoint.Build(ser)
	if err != nil {
		return nil, err
	}

	samples, err := s.newSampler(log.Named("sampler")).Sample(ctx, model)
	if err != nil {
		return nil, err
	}

	sum, err := summary.Summarize(samples)
	if err != nil {
		return nil, err
	}

	return &Result{
		Observations: ser.Len(),
		InputIndex:   ser.Offset() + sum.ChangepointIndex,
		Summary:      sum,
	}, nil
}

// AnalyzeDataset analyses the log returns of prices inside the configured
// window and dates the changepoint: the reported date is the first day whose
// return is governed by the post-break volatility. events may be nil.
func (s *Service) AnalyzeDataset(ctx context.Context, prices *dataset.Prices, events *dataset.Events) (*Result, error) {
	if prices == nil {
		return nil, fmt.Errorf("%w: no prices", series.ErrInvalidInput)
	}
	window := prices.Window(s.windowStart, s.windowEnd)
	s.logger.Debug(ctx, "price window selected",
		logger.Int("points", window.Len()),
		logger.Int("dropped_rows", window.Dropped),
	)

	res, err := s.Analyze(ctx, window.LogReturns())
	if err != nil {
		return nil, err
	}

	res.WindowStart = window.DateAt(0).Format(time.DateOnly)
	res.WindowEnd = window.DateAt(window.Len() - 1).Format(time.DateOnly)
	date := window.DateAt(res.InputIndex)
	res.ChangepointDate = date.Format(time.DateOnly)
	res.NearbyEvents = events.Near(date, s.eventWindowDays)
	return res, nil
}

// statusOf maps an analysis error onto the runs_total status label.
func statusOf(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, series.ErrInvalidInput), errors.Is(err, changepoint.ErrInvalidInput), errors.Is(err, sampler.ErrInvalidConfig):
		return metrics.StatusInvalidInput
	case errors.Is(err, sampler.ErrSamplingTimeout):
		return metrics.StatusTimeout
	case errors.Is(err, sampler.ErrSampling):
		return metrics.StatusSampling
	case errors.Is(err, summary.ErrDegenerateEstimate):
		return metrics.StatusDegenerate
	default:
		return metrics.StatusUnknown
	}
}
