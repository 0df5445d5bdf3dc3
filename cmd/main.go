package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/volbreak/internal/adapters/dataset"
	app "github.com/okian/volbreak/internal/app"
	"github.com/okian/volbreak/internal/config"
	"github.com/okian/volbreak/pkg/logger"
	"github.com/okian/volbreak/pkg/metrics"
)

func main() {
	// Logs go to stderr; stdout carries only the JSON result.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}

	if err := run(ctx, cfg, os.Stdout); err != nil {
		logger.Get().Error(ctx, "analysis run failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
	stop()
}

// run configures logging from cfg, analyses the configured price file and
// writes the result to out.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	start, end, err := cfg.Window()
	if err != nil {
		return err
	}

	prices, err := loadPrices(ctx, cfg, log)
	if err != nil {
		metrics.RecordErrorByComponent("dataset", "prices")
		return err
	}
	log.Info(ctx, "prices loaded",
		logger.String("path", cfg.PricesPath),
		logger.Int("points", prices.Len()),
		logger.Int("dropped_rows", prices.Dropped),
	)

	var events *dataset.Events
	if cfg.EventsPath != "" {
		if events, err = dataset.LoadEvents(ctx, cfg.EventsPath); err != nil {
			metrics.RecordErrorByComponent("dataset", "events")
			return err
		}
		log.Info(ctx, "events loaded", logger.String("path", cfg.EventsPath), logger.Int("events", len(events.Items)))
	}

	opts := []app.Option{
		app.WithLogger(log.Named("analysis")),
		app.WithDraws(cfg.Draws),
		app.WithTune(cfg.Tune),
		app.WithChains(cfg.Chains),
		app.WithTimeout(cfg.Timeout()),
		app.WithIterationBudget(cfg.IterationBudget),
		app.WithTargetAcceptance(cfg.TargetAccept),
		app.WithWindow(start, end),
		app.WithEventWindowDays(cfg.EventWindowDays),
	}
	if cfg.Seed != nil {
		opts = append(opts, app.WithSeed(*cfg.Seed))
	}

	res, runErr := app.New(opts...).AnalyzeDataset(ctx, prices, events)

	// Failed runs are exported too so the textfile reflects the error status.
	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn(ctx, "metrics export failed", logger.String("path", cfg.MetricsTextfile), logger.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// loadPrices reads the processed price file. When it does not exist yet and a
// raw export is configured, the raw export is cleaned and saved there first.
func loadPrices(ctx context.Context, cfg *config.Config, log logger.Logger) (*dataset.Prices, error) {
	prices, err := dataset.LoadPrices(ctx, cfg.PricesPath)
	if err == nil || !errors.Is(err, dataset.ErrFileNotFound) || cfg.RawPricesPath == "" {
		return prices, err
	}

	prices, err = dataset.LoadPrices(ctx, cfg.RawPricesPath)
	if err != nil {
		return nil, err
	}
	if err := prices.Save(ctx, cfg.PricesPath); err != nil {
		return nil, err
	}
	log.Info(ctx, "raw prices cleaned",
		logger.String("raw_path", cfg.RawPricesPath),
		logger.String("path", cfg.PricesPath),
		logger.Int("dropped_rows", prices.Dropped),
	)
	return prices, nil
}
