// Package config defines the engine configuration and its loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers defaults, an optional YAML file and VOLBREAK_ env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"
)

// DateLayout is the layout of start_date and end_date.
const DateLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format"`

	// PricesPath points at the cleaned Brent price CSV (Date, Price).
	PricesPath string `koanf:"prices_path"`

	// RawPricesPath is the original export. When PricesPath does not exist it
	// is cleaned and written to PricesPath. Empty disables the step.
	RawPricesPath string `koanf:"raw_prices_path"`

	// EventsPath optionally points at the events CSV (EventDate, ...).
	EventsPath string `koanf:"events_path"`

	// StartDate and EndDate bound the analysis window, inclusive. Empty means open.
	StartDate string `koanf:"start_date"`
	EndDate   string `koanf:"end_date"`

	// Draws is the number of retained draws per chain.
	Draws int `koanf:"draws"`

	// Tune is the number of discarded adaptation iterations per chain.
	Tune int `koanf:"tune"`

	// Chains is the number of parallel Markov chains.
	Chains int `koanf:"chains"`

	// Seed makes runs reproducible when set.
	Seed *int64 `koanf:"seed"`

	// TimeoutMS bounds a sampling run in wall-clock milliseconds; 0 disables it.
	TimeoutMS int `koanf:"timeout_ms"`

	// IterationBudget caps tune+draws per chain; 0 disables it.
	IterationBudget int `koanf:"iteration_budget"`

	// TargetAccept is the acceptance rate scale proposals adapt towards.
	TargetAccept float64 `koanf:"target_accept"`

	// EventWindowDays selects events within this many days of the changepoint.
	EventWindowDays int `koanf:"event_window_days"`

	// MetricsTextfile, when set, receives the Prometheus exposition after a run.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// New creates a Config with defaults. The analysis window matches the
// 2005-2010 study period.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		PricesPath:      "data/01_processed/BrentOilPrices_Cleaned.csv",
		RawPricesPath:   "data/00_raw/BrentOilPrices.csv",
		EventsPath:      "",
		StartDate:       "2005-01-01",
		EndDate:         "2010-12-31",
		Draws:           2000,
		Tune:            3000,
		Chains:          4,
		TimeoutMS:       0,
		IterationBudget: 0,
		TargetAccept:    0.44,
		EventWindowDays: 30,
	}
}

// Timeout returns TimeoutMS as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Window parses StartDate and EndDate. Empty values yield zero times.
func (c *Config) Window() (start, end time.Time, err error) {
	if c.StartDate != "" {
		if start, err = time.Parse(DateLayout, c.StartDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %w", ErrInvalidConfig, err)
		}
	}
	if c.EndDate != "" {
		if end, err = time.Parse(DateLayout, c.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %w", ErrInvalidConfig, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date %s precedes start_date %s", ErrInvalidConfig, c.EndDate, c.StartDate)
	}
	return start, end, nil
}

// Validate checks sampler settings and the analysis window.
func (c *Config) Validate() error {
	switch {
	case c.PricesPath == "":
		return fmt.Errorf("%w: prices_path must not be empty", ErrInvalidConfig)
	case c.Draws < 1:
		return fmt.Errorf("%w: draws must be >= 1", ErrInvalidConfig)
	case c.Tune < 0:
		return fmt.Errorf("%w: tune must be >= 0", ErrInvalidConfig)
	case c.Chains < 1:
		return fmt.Errorf("%w: chains must be >= 1", ErrInvalidConfig)
	case c.TimeoutMS < 0:
		return fmt.Errorf("%w: timeout_ms must be >= 0", ErrInvalidConfig)
	case c.IterationBudget < 0:
		return fmt.Errorf("%w: iteration_budget must be >= 0", ErrInvalidConfig)
	case c.TargetAccept <= 0 || c.TargetAccept >= 1:
		return fmt.Errorf("%w: target_accept must lie in (0, 1)", ErrInvalidConfig)
	case c.EventWindowDays < 0:
		return fmt.Errorf("%w: event_window_days must be >= 0", ErrInvalidConfig)
	}
	_, _, err := c.Window()
	return err
}
