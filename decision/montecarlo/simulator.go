// Package montecarlo runs deterministic Monte Carlo simulations over
// uncertain cost inputs.
//
// Every trial draws from its own linear congruential generator seeded with
// seed+trial, so a run is reproducible from (seed, run count, inputs) alone
// and splitting trials across goroutines does not change the result.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"costrisk/decision/cost"
	"costrisk/decision/probabilistic"
	riskerrors "costrisk/pkg/errors"
)

// Config controls a simulation run.
type Config struct {
	RunCount      int    `json:"run_count"`
	Seed          uint64 `json:"seed"`
	Workers       int    `json:"workers"`
	HistogramBins int    `json:"histogram_bins"`
	// MaxRunCount bounds RunCount; larger requests are rejected.
	MaxRunCount int `json:"max_run_count"`
}

// DefaultMaxRunCount caps a single simulation at one million trials.
const DefaultMaxRunCount = 1_000_000

// DefaultConfig returns 10k sequential trials with seed 42 and 20 bins.
func DefaultConfig() Config {
	return Config{
		RunCount:      10000,
		Seed:          42,
		Workers:       1,
		HistogramBins: 20,
		MaxRunCount:   DefaultMaxRunCount,
	}
}

// Simulator runs simulations with a fixed configuration.
type Simulator struct {
	cfg Config
}

// NewSimulator creates a simulator. Zero workers, bins or max run count fall
// back to the defaults.
func NewSimulator(cfg Config) *Simulator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.HistogramBins <= 0 {
		cfg.HistogramBins = def.HistogramBins
	}
	if cfg.MaxRunCount <= 0 {
		cfg.MaxRunCount = def.MaxRunCount
	}
	return &Simulator{cfg: cfg}
}

// Simulate runs runCount sequential trials with the default histogram.
func Simulate(inputs []UncertaintyInput, runCount int, seed uint64) (*Result, error) {
	return NewSimulator(Config{RunCount: runCount, Seed: seed}).Run(context.Background(), inputs)
}

// Run validates the inputs, runs every trial and summarizes the outcome.
// The context only matters for very large runs split across workers.
func (s *Simulator) Run(ctx context.Context, inputs []UncertaintyInput) (*Result, error) {
	if len(inputs) == 0 {
		return nil, riskerrors.NewEmptyInputsError()
	}
	if s.cfg.RunCount <= 0 {
		return nil, riskerrors.NewValidationError(riskerrors.ErrCodeInvalidRunCount,
			fmt.Sprintf("run count must be positive, got %d", s.cfg.RunCount))
	}
	if s.cfg.RunCount > s.cfg.MaxRunCount {
		return nil, riskerrors.NewValidationError(riskerrors.ErrCodeInvalidRunCount,
			fmt.Sprintf("run count %d exceeds the limit of %d", s.cfg.RunCount, s.cfg.MaxRunCount))
	}
	for _, in := range inputs {
		if err := in.validate(); err != nil {
			return nil, err
		}
	}

	totals := make([]float64, s.cfg.RunCount)
	if err := s.runTrials(ctx, inputs, totals); err != nil {
		return nil, err
	}
	sort.Float64s(totals)

	return summarize(totals, s.cfg.Seed, s.cfg.HistogramBins), nil
}

func (s *Simulator) runTrials(ctx context.Context, inputs []UncertaintyInput, totals []float64) error {
	workers := s.cfg.Workers
	if workers > len(totals) {
		workers = len(totals)
	}
	chunk := (len(totals) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(totals); start += chunk {
		start, end := start, min(start+chunk, len(totals))
		g.Go(func() error {
			for trial := start; trial < end; trial++ {
				if trial%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				total := runTrial(inputs, s.cfg.Seed, trial)
				if math.IsInf(total, 0) || math.IsNaN(total) {
					return riskerrors.NewValidationError(riskerrors.ErrCodeNonFiniteResult,
						fmt.Sprintf("trial %d produced a non-finite total; input values are too large", trial))
				}
				totals[trial] = total
			}
			return nil
		})
	}
	return g.Wait()
}

// runTrial draws one sample per input and returns the weighted total,
// floored at zero.
func runTrial(inputs []UncertaintyInput, seed uint64, trial int) float64 {
	rng := newTrialRNG(seed, trial)
	var total float64
	for _, in := range inputs {
		total += in.Distribution.sample(rng, in.BaseValue) * in.Weight
	}
	return math.Max(0, total)
}

// InputForEstimate turns a point estimate into a normal input whose spread
// matches the closed-form predictor's uncertainty for the resource type.
func InputForEstimate(est cost.Estimate, resourceType string) UncertaintyInput {
	ratio := probabilistic.DefaultConfig().UncertaintyRatio(est.Confidence, resourceType)
	return UncertaintyInput{
		Name:         est.ResourceID,
		BaseValue:    est.MonthlyCost,
		Distribution: Normal{StdDevRatio: ratio},
		Weight:       1,
	}
}
