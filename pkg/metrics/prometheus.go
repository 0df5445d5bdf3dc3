// Package metrics provides Prometheus metrics for the changepoint engine.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the status label of runs_total.
const (
	StatusSuccess      = "success"
	StatusInvalidInput = "invalid_input"
	StatusSampling     = "sampling_error"
	StatusTimeout      = "timeout"
	StatusDegenerate   = "degenerate"
	StatusUnknown      = "unknown"
)

// Manager owns every Prometheus collector of the engine.
type Manager struct {
	namespace       string
	subsystem       string
	durationBuckets []float64
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Inference runs
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	seriesLength prometheus.Gauge

	// Chains
	chainsActive    prometheus.Gauge
	chainDuration   prometheus.Histogram
	chainIterations prometheus.Counter
	acceptanceRate  *prometheus.GaugeVec
	stepSize        *prometheus.GaugeVec
	divergences     prometheus.Counter

	// Results
	changepointIndex    prometheus.Gauge
	volatilityChangePct prometheus.Gauge

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "volbreak",
		subsystem:       "inference",
		durationBuckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		constLabels:     map[string]string{},
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_total",
		Help:        "Total number of inference runs by outcome",
		ConstLabels: m.constLabels,
	}, []string{"status"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "run_duration_seconds",
		Help:        "Wall-clock duration of a full inference run",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.seriesLength = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "series_length",
		Help:        "Number of observations in the most recent series",
		ConstLabels: m.constLabels,
	})

	m.chainsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "chains_active",
		Help:        "Number of Markov chains currently running",
		ConstLabels: m.constLabels,
	})

	m.chainDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "chain_duration_seconds",
		Help:        "Wall-clock duration of a single chain",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.chainIterations = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "chain_iterations_total",
		Help:        "Total number of sampler iterations across chains, tuning included",
		ConstLabels: m.constLabels,
	})

	m.acceptanceRate = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "acceptance_rate",
		Help:        "Metropolis acceptance rate over retained draws",
		ConstLabels: m.constLabels,
	}, []string{"parameter", "chain"})

	m.stepSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "step_size",
		Help:        "Proposal scale on the log axis after tuning",
		ConstLabels: m.constLabels,
	}, []string{"parameter", "chain"})

	m.divergences = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "divergences_total",
		Help:        "Total number of chains aborted by numerical divergence",
		ConstLabels: m.constLabels,
	})

	m.changepointIndex = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "changepoint_index",
		Help:        "Posterior mode of the changepoint index from the most recent run",
		ConstLabels: m.constLabels,
	})

	m.volatilityChangePct = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "volatility_change_percent",
		Help:        "Relative change between posterior mean volatilities, in percent",
		ConstLabels: m.constLabels,
	})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_total",
		Help:        "Total number of errors by component and type",
		ConstLabels: m.constLabels,
	}, []string{"component", "type"})
}

// RecordRun counts a finished run and observes its duration.
func RecordRun(status string, d time.Duration) {
	globalManager.runs.WithLabelValues(status).Inc()
	globalManager.runDuration.Observe(d.Seconds())
}

// UpdateSeriesLength sets the length of the series being analysed.
func UpdateSeriesLength(n int) {
	globalManager.seriesLength.Set(float64(n))
}

// ChainStarted increments the active chain gauge.
func ChainStarted() {
	globalManager.chainsActive.Inc()
}

// ChainFinished decrements the active chain gauge and observes the chain duration.
func ChainFinished(d time.Duration, iterations int) {
	globalManager.chainsActive.Dec()
	globalManager.chainDuration.Observe(d.Seconds())
	globalManager.chainIterations.Add(float64(iterations))
}

// RecordAcceptance sets the acceptance rate and tuned step size of one parameter on one chain.
func RecordAcceptance(parameter string, chain int, rate, step float64) {
	label := strconv.Itoa(chain)
	globalManager.acceptanceRate.WithLabelValues(parameter, label).Set(rate)
	globalManager.stepSize.WithLabelValues(parameter, label).Set(step)
}

// RecordDivergence counts a chain aborted by divergence.
func RecordDivergence() {
	globalManager.divergences.Inc()
}

// RecordResult publishes the headline estimates of a successful run.
func RecordResult(changepointIndex int, volatilityChangePct float64) {
	globalManager.changepointIndex.Set(float64(changepointIndex))
	globalManager.volatilityChangePct.Set(volatilityChangePct)
}

// RecordErrorByComponent increments the error counter for a component and error type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the registry in the text exposition format to path,
// for pickup by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}
