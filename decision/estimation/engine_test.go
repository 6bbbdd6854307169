package estimation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrisk/decision/cost"
	"costrisk/decision/iac"
	"costrisk/decision/regression"
	"costrisk/decision/seasonality"
)

type fakeHistory struct {
	series map[string][]seasonality.CostPoint
	err    error
	calls  []string
}

func (f *fakeHistory) CostSeries(_ context.Context, resourceID string, _ time.Time) ([]seasonality.CostPoint, error) {
	f.calls = append(f.calls, resourceID)
	if f.err != nil {
		return nil, f.err
	}
	return f.series[resourceID], nil
}

// weeklySeries is 60 days of 100 on weekdays and 50 on weekends.
func weeklySeries() []seasonality.CostPoint {
	series := make([]seasonality.CostPoint, 60)
	for d := 0; d < 60; d++ {
		c := 100.0
		if wd := time.Weekday((d + 4) % 7); wd == time.Saturday || wd == time.Sunday {
			c = 50
		}
		series[d] = seasonality.CostPoint{Timestamp: uint64(d*86400 + 43200), Cost: c}
	}
	return series
}

func testEngine() *Engine {
	cfg := DefaultConfig()
	cfg.Seasonality.Now = func() time.Time { return time.Unix(3600, 0).UTC() }
	cfg.Simulation.RunCount = 2000
	return NewEngine(cfg).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func create(id, resourceType string) iac.ResourceChange {
	name := id[strings.LastIndex(id, ".")+1:]
	return iac.ResourceChange{ID: id, Type: resourceType, Name: name, Action: iac.ActionCreate}
}

func estimate(id string, monthly, conf float64) *cost.Estimate {
	est := cost.NewEstimate(id, monthly, monthly*0.8, monthly*1.2, conf, false)
	return &est
}

func TestAnalyze_SingleResourceNoHistory(t *testing.T) {
	e := testEngine()

	res, err := e.Analyze(context.Background(), Request{
		Resources: []ResourceInput{{
			Change:   create("aws_instance.web", "aws_instance"),
			Estimate: estimate("aws_instance.web", 100, 0.9),
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Resources, 1)

	ra := res.Resources[0]
	assert.Equal(t, regression.TypeProvisioning, ra.Detection.Regression)
	assert.Equal(t, uint32(68), ra.Detection.SeverityScore)
	assert.False(t, ra.Seasonality.HasSeasonality)
	assert.Equal(t, 1.0, ra.Seasonality.AdjustmentFactor)
	require.NotNil(t, ra.Prediction)
	assert.Equal(t, 100.0, ra.Prediction.P50)
	require.NotNil(t, ra.Scenarios)
	assert.Greater(t, ra.Scenarios.CostAtRisk, 0.0)

	assert.Equal(t, "100", res.MonthlyCostP50.String())
	assert.True(t, res.MonthlyCostP90.GreaterThan(res.MonthlyCostP50))
	assert.Equal(t, regression.SeverityHigh, res.HighestSeverity)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Empty(t, res.Warnings)
	assert.Nil(t, res.Simulation)
	assert.Equal(t, 1, res.ResourcesEstimated)
}

func TestAnalyze_SeasonalAdjustmentFromHistorySource(t *testing.T) {
	history := &fakeHistory{series: map[string][]seasonality.CostPoint{
		"aws_lambda_function.api": weeklySeries(),
	}}
	e := testEngine().WithHistorySource(history)

	res, err := e.Analyze(context.Background(), Request{
		Resources: []ResourceInput{{
			Change:   create("aws_lambda_function.api", "aws_lambda_function"),
			Estimate: estimate("aws_lambda_function.api", 200, 0.7),
		}},
	})
	require.NoError(t, err)

	ra := res.Resources[0]
	assert.Equal(t, []string{"aws_lambda_function.api"}, history.calls)
	require.True(t, ra.Seasonality.HasSeasonality)
	assert.Equal(t, 1, res.ResourcesSeasonal)

	// epoch day 0 is the trough of the weekly wave
	factor := ra.Seasonality.AdjustmentFactor
	assert.Less(t, factor, 1.0)
	require.NotNil(t, ra.AdjustedEstimate)
	assert.InDelta(t, 200*factor, ra.AdjustedEstimate.MonthlyCost, 1e-9)
	assert.InDelta(t, 200*factor, ra.Prediction.P50, 1e-9)

	// detection scores the plan's unadjusted delta
	assert.Equal(t, 200.0, ra.Detection.CostDelta)
}

func TestAnalyze_SuppliedHistorySkipsSource(t *testing.T) {
	history := &fakeHistory{}
	e := testEngine().WithHistorySource(history)

	res, err := e.Analyze(context.Background(), Request{
		Resources: []ResourceInput{{
			Change:   create("aws_s3_bucket.logs", "aws_s3_bucket"),
			Estimate: estimate("aws_s3_bucket.logs", 40, 0.8),
			History:  weeklySeries(),
		}},
	})
	require.NoError(t, err)
	assert.Empty(t, history.calls)
	assert.True(t, res.Resources[0].Seasonality.HasSeasonality)
}

func TestAnalyze_HistoryFailureDegrades(t *testing.T) {
	e := testEngine().WithHistorySource(&fakeHistory{err: errors.New("connection refused")})

	res, err := e.Analyze(context.Background(), Request{
		Resources: []ResourceInput{{
			Change:   create("aws_instance.web", "aws_instance"),
			Estimate: estimate("aws_instance.web", 100, 0.9),
		}},
	})
	require.NoError(t, err)

	ra := res.Resources[0]
	assert.False(t, ra.Seasonality.HasSeasonality)
	assert.Equal(t, 1.0, ra.Seasonality.AdjustmentFactor)
	require.NotNil(t, ra.Prediction)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "aws_instance.web")
	assert.Contains(t, res.Warnings[0], "connection refused")
}

func TestAnalyze_MissingEstimate(t *testing.T) {
	e := testEngine()

	res, err := e.Analyze(context.Background(), Request{
		Resources: []ResourceInput{{Change: create("aws_iam_role.ci", "aws_iam_role")}},
		Simulate:  true,
	})
	require.NoError(t, err)

	ra := res.Resources[0]
	assert.Nil(t, ra.Prediction)
	assert.Nil(t, ra.AdjustedEstimate)
	assert.Equal(t, 0.0, ra.Detection.CostDelta)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Nil(t, res.Simulation)
	assert.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[1], "simulation skipped")
}

func TestAnalyze_SimulationIsReproducible(t *testing.T) {
	req := Request{
		Resources: []ResourceInput{
			{Change: create("aws_instance.web", "aws_instance"), Estimate: estimate("aws_instance.web", 100, 0.9)},
			{Change: create("aws_lambda_function.api", "aws_lambda_function"), Estimate: estimate("aws_lambda_function.api", 200, 0.7)},
		},
		Simulate: true,
		Seed:     7,
	}

	first, err := testEngine().Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := testEngine().Analyze(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, first.Simulation)
	assert.Equal(t, 2000, first.Simulation.RunCount)
	assert.Equal(t, uint64(7), first.AuditTrail.Seed)
	assert.Equal(t, first.Simulation, second.Simulation)
	assert.NotEqual(t, first.AuditTrail.RunID, second.AuditTrail.RunID)
	assert.InDelta(t, 300, first.Simulation.Mean, 15)
	assert.LessOrEqual(t, first.Simulation.VaR95, first.Simulation.CVaR95)
}

func TestAnalyze_InvalidRunCount(t *testing.T) {
	_, err := testEngine().Analyze(context.Background(), Request{
		Resources: []ResourceInput{{Change: create("aws_instance.web", "aws_instance"), Estimate: estimate("aws_instance.web", 100, 0.9)}},
		Simulate:  true,
		RunCount:  -5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_RUN_COUNT")
}

func TestAnalyze_DeletesAndOrdering(t *testing.T) {
	drop := create("aws_instance.old", "aws_instance")
	drop.Action = iac.ActionDelete

	res, err := testEngine().Analyze(context.Background(), Request{
		Resources: []ResourceInput{
			{Change: drop, Estimate: estimate("aws_instance.old", 60, 0.9)},
			{Change: create("aws_instance.web", "aws_instance"), Estimate: estimate("aws_instance.web", 100, 0.9)},
			{Change: create("aws_db_instance.main", "aws_db_instance"), Estimate: estimate("aws_db_instance.main", 1500, 0.95)},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Resources, 3)

	assert.Equal(t, "aws_db_instance.main", res.Resources[0].ResourceID)
	assert.Equal(t, regression.SeverityCritical, res.HighestSeverity)
	assert.Equal(t, "1600", res.MonthlyCostP50.String(), "deleted resources leave the projected total")
	assert.Equal(t, "1540", res.CostDelta.String())
	assert.Equal(t, 3, res.ResourcesAnalyzed)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testEngine().Analyze(ctx, Request{
		Resources: []ResourceInput{{Change: create("aws_instance.web", "aws_instance")}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalysis_Summary(t *testing.T) {
	res, err := testEngine().Analyze(context.Background(), Request{
		Resources: []ResourceInput{
			{Change: create("aws_instance.web", "aws_instance"), Estimate: estimate("aws_instance.web", 100.123456, 0.9)},
		},
		Environment: "staging",
		Simulate:    true,
	})
	require.NoError(t, err)

	s := res.Summary()
	assert.Equal(t, res.AuditTrail.RunID, s.RunID)
	assert.Equal(t, "staging", s.Environment)
	assert.Equal(t, uint32(1), s.Resources)
	assert.Equal(t, "100.1235", s.MonthlyCostP50.String())
	assert.Equal(t, "high", s.HighestSeverity)
	require.NotNil(t, s.VaR95)
	assert.Equal(t, res.Simulation.VaR95, *s.VaR95)
}
