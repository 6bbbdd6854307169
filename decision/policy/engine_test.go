package policy

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrisk/decision/estimation"
	"costrisk/decision/montecarlo"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
)

func analysis(p50, p90, delta, conf float64) *estimation.Analysis {
	return &estimation.Analysis{
		MonthlyCostP50:     decimal.NewFromFloat(p50),
		MonthlyCostP90:     decimal.NewFromFloat(p90),
		CostDelta:          decimal.NewFromFloat(delta),
		Confidence:         conf,
		HighestSeverity:    regression.SeverityMedium,
		ResourcesAnalyzed:  1,
		ResourcesEstimated: 1,
		Resources: []estimation.ResourceAnalysis{{
			ResourceID: "aws_instance.web",
			Detection:  regression.Detection{CostDelta: delta, Severity: regression.SeverityMedium},
			Prediction: &probabilistic.Estimate{P50: p50, StdDev: (p90 - p50) / 1.28, RiskLevel: probabilistic.RiskModerate},
		}},
	}
}

func TestEvaluate_DefaultsPass(t *testing.T) {
	res, err := NewEngine().Evaluate(EvaluationRequest{Analysis: analysis(100, 125.6, 100, 0.9), Environment: "prod"})
	require.NoError(t, err)

	assert.Equal(t, DecisionPass, res.Decision)
	assert.Empty(t, res.Violations)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 4, res.PoliciesRan)
}

func TestEvaluate_DefaultWarnings(t *testing.T) {
	a := analysis(100, 200, 100, 0.5)
	a.HighestSeverity = regression.SeverityCritical
	a.Resources[0].Prediction.RiskLevel = probabilistic.RiskVeryHigh

	res, err := NewEngine().Evaluate(EvaluationRequest{Analysis: a})
	require.NoError(t, err)

	assert.Equal(t, DecisionWarn, res.Decision)
	require.Len(t, res.Warnings, 3)
	assert.Equal(t, "default-confidence", res.Warnings[0].PolicyID)
	assert.Contains(t, res.Warnings[0].Message, "50%")
	assert.Equal(t, "default-risk", res.Warnings[1].PolicyID)
	assert.Contains(t, res.Warnings[1].Message, "aws_instance.web")
	assert.Equal(t, "critical-regression", res.Warnings[2].PolicyID)
}

func TestEvaluate_IncompleteInProdDenies(t *testing.T) {
	a := analysis(100, 125, 100, 0.9)
	a.ResourcesAnalyzed = 3

	dev, err := NewEngine().Evaluate(EvaluationRequest{Analysis: a, Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, DecisionPass, dev.Decision)

	prod, err := NewEngine().Evaluate(EvaluationRequest{Analysis: a, Environment: "prod"})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, prod.Decision)
	require.Len(t, prod.Violations, 1)
	assert.Contains(t, prod.Violations[0].Message, "2 resources")
}

func TestEvaluate_CostPolicies(t *testing.T) {
	custom := []Policy{
		{ID: "limit", Name: "Limit", Type: PolicyTypeCostLimit, Severity: SeverityError, Threshold: 1000, Enabled: true},
		{ID: "growth", Name: "Growth", Type: PolicyTypeCostGrowth, Severity: SeverityWarning, Threshold: 500, Enabled: true},
		{ID: "off", Name: "Disabled", Type: PolicyTypeCostLimit, Severity: SeverityError, Threshold: 1, Enabled: false},
	}

	res, err := NewEngine().Evaluate(EvaluationRequest{Analysis: analysis(900, 1200.50, 600, 0.9), CustomPolicies: custom})
	require.NoError(t, err)

	assert.Equal(t, DecisionDeny, res.Decision)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "Monthly cost P90 ($1200.50) exceeds limit ($1000.00)", res.Violations[0].Message)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "growth", res.Warnings[0].PolicyID)
	assert.Equal(t, 6, res.PoliciesRan)

	// exactly at the limit passes
	res, err = NewEngine().Evaluate(EvaluationRequest{Analysis: analysis(900, 1000, 0, 0.9), CustomPolicies: custom[:1]})
	require.NoError(t, err)
	assert.Equal(t, DecisionPass, res.Decision)
}

func TestEvaluate_VaRBudgetNeedsSimulation(t *testing.T) {
	varPolicy := []Policy{{ID: "var", Name: "VaR", Type: PolicyTypeVaRBudget, Severity: SeverityError, Threshold: 150, Enabled: true}}

	a := analysis(100, 125, 100, 0.9)
	res, err := NewEngine().Evaluate(EvaluationRequest{Analysis: a, CustomPolicies: varPolicy})
	require.NoError(t, err)
	assert.Equal(t, DecisionPass, res.Decision)

	sim, err := montecarlo.Simulate([]montecarlo.UncertaintyInput{{
		Name: "web", BaseValue: 100, Distribution: montecarlo.Normal{StdDevRatio: 0.5}, Weight: 1,
	}}, 2000, 42)
	require.NoError(t, err)
	require.Greater(t, sim.VaR95, 150.0)
	a.Simulation = sim

	res, err = NewEngine().Evaluate(EvaluationRequest{Analysis: a, CustomPolicies: varPolicy})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, res.Decision)
	assert.True(t, strings.HasPrefix(res.Violations[0].Message, "Simulated VaR95"))
}

func TestBreachProbability(t *testing.T) {
	a := analysis(100, 125.6, 100, 0.9)

	// sigma 20: P(X > 125.6) is about 10%
	assert.InDelta(t, 0.10, BreachProbability(a, 125.6), 0.005)
	assert.InDelta(t, 0.5, BreachProbability(a, 100), 1e-9)

	policies := []Policy{{ID: "breach", Name: "Breach", Type: PolicyTypeBreachProbability, Severity: SeverityError, Threshold: 5, Budget: 125.6, Enabled: true}}
	res, err := NewEngine().Evaluate(EvaluationRequest{Analysis: a, CustomPolicies: policies})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, res.Decision)
	assert.Contains(t, res.Violations[0].Message, "$125.60/mo")

	policies[0].Threshold = 20
	res, err = NewEngine().Evaluate(EvaluationRequest{Analysis: a, CustomPolicies: policies})
	require.NoError(t, err)
	assert.Equal(t, DecisionPass, res.Decision)
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := NewEngine().Evaluate(EvaluationRequest{})
	assert.Error(t, err)

	bad := []Policy{{ID: "x", Type: "carbon_budget", Severity: SeverityError, Enabled: true}}
	_, err = NewEngine().Evaluate(EvaluationRequest{Analysis: analysis(1, 1, 1, 1), CustomPolicies: bad})
	assert.ErrorContains(t, err, "unknown type")
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, Policy{ID: "a", Type: PolicyTypeCostLimit, Severity: SeverityInfo, Threshold: 10}.Validate())
	assert.Error(t, Policy{ID: "b", Type: PolicyTypeBreachProbability, Severity: SeverityError, Threshold: 10}.Validate())
	assert.Error(t, Policy{ID: "c", Type: PolicyTypeSeverityGate, Severity: SeverityError, MinSeverity: "extreme"}.Validate())
	assert.Error(t, Policy{ID: "d", Type: PolicyTypeCostLimit, Severity: "fatal"}.Validate())
	assert.Error(t, Policy{ID: "e", Type: PolicyTypeCostLimit, Severity: SeverityError, Threshold: -1}.Validate())
}

func TestLoadPolicies(t *testing.T) {
	raw := `[
		{"id": "limit", "name": "Limit", "type": "cost_limit", "severity": "error", "threshold": 5000, "enabled": true},
		{"id": "gate", "name": "Gate", "type": "severity_gate", "severity": "warning", "min_severity": "high", "enabled": true}
	]`

	policies, err := LoadPolicies(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, regression.SeverityHigh, policies[1].MinSeverity)

	_, err = LoadPolicies(strings.NewReader(`[{"id": "x", "type": "nope", "severity": "error"}]`))
	assert.Error(t, err)
	_, err = LoadPolicies(strings.NewReader(`{`))
	assert.Error(t, err)
}
