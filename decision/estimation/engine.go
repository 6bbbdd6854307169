// Package estimation runs the cost risk pipeline for a set of resource
// changes: seasonal adjustment from cost history, uncertainty bands,
// optional Monte Carlo simulation and regression detection.
package estimation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costrisk/decision/cost"
	"costrisk/decision/iac"
	"costrisk/decision/montecarlo"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
	"costrisk/decision/seasonality"
	riskerrors "costrisk/pkg/errors"
)

// HistorySource provides historical cost series per resource.
type HistorySource interface {
	CostSeries(ctx context.Context, resourceID string, since time.Time) ([]seasonality.CostPoint, error)
}

// Config holds the settings of every stage.
type Config struct {
	// HistoryWindow is how far back cost history is read.
	HistoryWindow time.Duration             `json:"history_window"`
	Weights       regression.ScoringWeights `json:"weights"`
	Predictor     probabilistic.Config      `json:"predictor"`
	Seasonality   seasonality.Config        `json:"seasonality"`
	Simulation    montecarlo.Config         `json:"simulation"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		HistoryWindow: 90 * 24 * time.Hour,
		Weights:       regression.DefaultScoringWeights(),
		Predictor:     probabilistic.DefaultConfig(),
		Seasonality:   seasonality.DefaultConfig(),
		Simulation:    montecarlo.DefaultConfig(),
	}
}

// Engine is the cost risk pipeline.
type Engine struct {
	cfg       Config
	history   HistorySource
	detector  *regression.Detector
	predictor *probabilistic.Predictor
	seasonal  *seasonality.Detector
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a pipeline without a history source.
func NewEngine(cfg Config) *Engine {
	now := cfg.Seasonality.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		detector:  regression.NewDetector(cfg.Weights),
		predictor: probabilistic.NewPredictor(cfg.Predictor),
		seasonal:  seasonality.NewDetector(cfg.Seasonality),
		logger:    slog.Default(),
		now:       now,
	}
}

// WithHistorySource adds cost history lookups.
func (e *Engine) WithHistorySource(src HistorySource) *Engine {
	e.history = src
	return e
}

// WithLogger replaces the default logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// ResourceInput is one change to analyze.
type ResourceInput struct {
	Change   iac.ResourceChange `json:"change"`
	Estimate *cost.Estimate     `json:"estimate,omitempty"`
	// History, when set, is used instead of the history source.
	History []seasonality.CostPoint `json:"history,omitempty"`
}

// Request contains inputs for one analysis.
type Request struct {
	Resources   []ResourceInput `json:"resources"`
	Environment string          `json:"environment,omitempty"`

	// Simulate runs a Monte Carlo simulation over all estimated resources.
	Simulate bool `json:"simulate"`
	// RunCount and Seed override the configured simulation when non-zero.
	RunCount int    `json:"run_count,omitempty"`
	Seed     uint64 `json:"seed,omitempty"`
}

// ResourceAnalysis is the pipeline output for one resource.
type ResourceAnalysis struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`

	Detection        regression.Detection            `json:"detection"`
	Seasonality      seasonality.Analysis            `json:"seasonality"`
	AdjustedEstimate *cost.Estimate                  `json:"adjusted_estimate,omitempty"`
	Prediction       *probabilistic.Estimate         `json:"prediction,omitempty"`
	Scenarios        *probabilistic.ScenarioAnalysis `json:"scenarios,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Analysis contains the complete pipeline output.
type Analysis struct {
	Resources []ResourceAnalysis `json:"resources"`

	// Projected totals over non-deleted resources, after seasonal adjustment.
	MonthlyCostP50 decimal.Decimal `json:"monthly_cost_p50"`
	MonthlyCostP90 decimal.Decimal `json:"monthly_cost_p90"`
	CostDelta      decimal.Decimal `json:"cost_delta"`

	HighestSeverity regression.Severity `json:"highest_severity"`
	Confidence      float64             `json:"confidence"`

	Simulation *montecarlo.Result `json:"simulation,omitempty"`

	Warnings   []string   `json:"warnings"`
	AuditTrail AuditTrail `json:"audit_trail"`

	ResourcesAnalyzed  int `json:"resources_analyzed"`
	ResourcesEstimated int `json:"resources_estimated"`
	ResourcesSeasonal  int `json:"resources_seasonal"`
}

// AuditTrail records what produced an analysis.
type AuditTrail struct {
	RunID       uuid.UUID `json:"run_id"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	Environment string    `json:"environment,omitempty"`
	RunCount    int       `json:"run_count,omitempty"`
	Seed        uint64    `json:"seed,omitempty"`
}

// Analyze runs the pipeline. Only validation errors from the simulator and
// context cancellation fail the call; missing history or estimates degrade
// to warnings.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	result := &Analysis{
		Resources:       make([]ResourceAnalysis, 0, len(req.Resources)),
		MonthlyCostP50:  decimal.Zero,
		MonthlyCostP90:  decimal.Zero,
		CostDelta:       decimal.Zero,
		HighestSeverity: regression.SeverityLow,
		Confidence:      1.0,
		Warnings:        make([]string, 0),
		AuditTrail: AuditTrail{
			RunID:       uuid.New(),
			AnalyzedAt:  e.now(),
			Environment: req.Environment,
		},
	}

	var inputs []montecarlo.UncertaintyInput
	for _, in := range req.Resources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.ResourcesAnalyzed++

		ra := e.analyzeResource(ctx, in)
		result.Resources = append(result.Resources, ra)

		delta := decimal.NewFromFloat(ra.Detection.CostDelta)
		result.CostDelta = result.CostDelta.Add(delta)
		if ra.Detection.Severity.Rank() > result.HighestSeverity.Rank() {
			result.HighestSeverity = ra.Detection.Severity
		}
		if ra.Seasonality.HasSeasonality {
			result.ResourcesSeasonal++
		}
		for _, w := range ra.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", ra.ResourceID, w))
		}

		if ra.Prediction == nil {
			continue
		}
		result.ResourcesEstimated++
		if ra.Prediction.Confidence < result.Confidence {
			result.Confidence = ra.Prediction.Confidence
		}
		if in.Change.Action == iac.ActionDelete {
			continue
		}
		result.MonthlyCostP50 = result.MonthlyCostP50.Add(decimal.NewFromFloat(ra.Prediction.P50))
		result.MonthlyCostP90 = result.MonthlyCostP90.Add(decimal.NewFromFloat(ra.Prediction.P90))
		inputs = append(inputs, montecarlo.InputForEstimate(*ra.AdjustedEstimate, ra.ResourceType))
	}

	if result.ResourcesEstimated == 0 {
		result.Confidence = 0
	}

	if req.Simulate {
		if err := e.simulate(ctx, req, inputs, result); err != nil {
			return nil, err
		}
	}

	// Most severe first, then by absolute cost delta.
	sort.SliceStable(result.Resources, func(i, j int) bool {
		a, b := result.Resources[i].Detection, result.Resources[j].Detection
		if a.SeverityScore != b.SeverityScore {
			return a.SeverityScore > b.SeverityScore
		}
		return abs(a.CostDelta) > abs(b.CostDelta)
	})

	e.logger.Info("analysis complete",
		"run_id", result.AuditTrail.RunID,
		"resources", result.ResourcesAnalyzed,
		"estimated", result.ResourcesEstimated,
		"seasonal", result.ResourcesSeasonal,
		"highest_severity", result.HighestSeverity,
		"cost_delta", result.CostDelta.StringFixed(2),
	)

	return result, nil
}

func (e *Engine) analyzeResource(ctx context.Context, in ResourceInput) ResourceAnalysis {
	change := in.Change
	ra := ResourceAnalysis{
		ResourceID:   change.ID,
		ResourceType: change.Type,
		Detection:    e.detector.Detect(change, in.Estimate),
	}

	series, err := e.historyFor(ctx, change.ID, in.History)
	if err != nil {
		herr := riskerrors.NewHistoryUnavailableError(change.ID, err)
		e.logger.Warn("cost history unavailable, skipping seasonal adjustment",
			"resource", change.ID,
			"error", err,
		)
		ra.Warnings = append(ra.Warnings, herr.Message)
	}
	ra.Seasonality = e.seasonal.Detect(series)

	if in.Estimate == nil {
		ra.Warnings = append(ra.Warnings, "no cost estimate, uncertainty bands skipped")
		return ra
	}

	adjusted := in.Estimate.Normalize().Scale(ra.Seasonality.AdjustmentFactor)
	prediction := e.predictor.FromCostEstimate(adjusted, change.Type)
	scenarios := prediction.ToScenarioAnalysis()

	ra.AdjustedEstimate = &adjusted
	ra.Prediction = &prediction
	ra.Scenarios = &scenarios
	return ra
}

func (e *Engine) historyFor(ctx context.Context, resourceID string, supplied []seasonality.CostPoint) ([]seasonality.CostPoint, error) {
	if len(supplied) > 0 || e.history == nil {
		return supplied, nil
	}
	since := e.now().Add(-e.cfg.HistoryWindow)
	series, err := e.history.CostSeries(ctx, resourceID, since)
	if err != nil {
		return nil, fmt.Errorf("loading cost series for %s: %w", resourceID, err)
	}
	return series, nil
}

func (e *Engine) simulate(ctx context.Context, req Request, inputs []montecarlo.UncertaintyInput, result *Analysis) error {
	if len(inputs) == 0 {
		result.Warnings = append(result.Warnings, "simulation skipped: no estimated resources")
		return nil
	}

	simCfg := e.cfg.Simulation
	if req.RunCount != 0 {
		simCfg.RunCount = req.RunCount
	}
	if req.Seed != 0 {
		simCfg.Seed = req.Seed
	}

	start := time.Now()
	sim, err := montecarlo.NewSimulator(simCfg).Run(ctx, inputs)
	if err != nil {
		return fmt.Errorf("monte carlo simulation: %w", err)
	}
	e.logger.Debug("simulation complete",
		"run_id", result.AuditTrail.RunID,
		"inputs", len(inputs),
		"runs", sim.RunCount,
		"duration", time.Since(start),
	)

	result.Simulation = sim
	result.AuditTrail.RunCount = sim.RunCount
	result.AuditTrail.Seed = sim.Seed
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// RunSummary is the flat record of an analysis kept by history stores.
type RunSummary struct {
	RunID             uuid.UUID       `json:"run_id"`
	AnalyzedAt        time.Time       `json:"analyzed_at"`
	Environment       string          `json:"environment"`
	Resources         uint32          `json:"resources"`
	ResourcesSeasonal uint32          `json:"resources_seasonal"`
	MonthlyCostP50    decimal.Decimal `json:"monthly_cost_p50"`
	MonthlyCostP90    decimal.Decimal `json:"monthly_cost_p90"`
	CostDelta         decimal.Decimal `json:"cost_delta"`
	HighestSeverity   string          `json:"highest_severity"`
	VaR95             *float64        `json:"var_95,omitempty"`
}

// Summary flattens the analysis for storage.
func (a *Analysis) Summary() RunSummary {
	s := RunSummary{
		RunID:             a.AuditTrail.RunID,
		AnalyzedAt:        a.AuditTrail.AnalyzedAt,
		Environment:       a.AuditTrail.Environment,
		Resources:         uint32(a.ResourcesAnalyzed),
		ResourcesSeasonal: uint32(a.ResourcesSeasonal),
		MonthlyCostP50:    a.MonthlyCostP50.Round(4),
		MonthlyCostP90:    a.MonthlyCostP90.Round(4),
		CostDelta:         a.CostDelta.Round(4),
		HighestSeverity:   string(a.HighestSeverity),
	}
	if a.Simulation != nil {
		v := a.Simulation.VaR95
		s.VaR95 = &v
	}
	return s
}
