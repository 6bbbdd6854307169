package probabilistic

import "math"

// Scenario is one named point on the cost distribution.
type Scenario struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// ScenarioAnalysis packages an estimate's bands as named scenarios.
type ScenarioAnalysis struct {
	ResourceID   string     `json:"resource_id"`
	Scenarios    []Scenario `json:"scenarios"`
	ExpectedCost float64    `json:"expected_cost"`
	// CostAtRisk is P90 - P50.
	CostAtRisk float64   `json:"cost_at_risk"`
	RiskLevel  RiskLevel `json:"risk_level"`
}

// Scenario names
const (
	ScenarioBestCase         = "best_case"
	ScenarioExpectedCase     = "expected_case"
	ScenarioWorstCase        = "worst_case"
	ScenarioCatastrophicCase = "catastrophic_case"
)

// ToScenarioAnalysis returns best/expected/worst/catastrophic cases at
// P10/P50/P90/P99.
func (e Estimate) ToScenarioAnalysis() ScenarioAnalysis {
	return ScenarioAnalysis{
		ResourceID: e.ResourceID,
		Scenarios: []Scenario{
			{Name: ScenarioBestCase, Probability: 0.10, MonthlyCost: e.P10},
			{Name: ScenarioExpectedCase, Probability: 0.50, MonthlyCost: e.P50},
			{Name: ScenarioWorstCase, Probability: 0.90, MonthlyCost: e.P90},
			{Name: ScenarioCatastrophicCase, Probability: 0.99, MonthlyCost: e.P99},
		},
		ExpectedCost: e.P50,
		CostAtRisk:   e.P90 - e.P50,
		RiskLevel:    e.RiskLevel,
	}
}

// ProbabilityAbove estimates P(cost > budget) under the normal
// approximation the bands are built from.
func (e Estimate) ProbabilityAbove(budget float64) float64 {
	if e.StdDev == 0 {
		if e.P50 > budget {
			return 1
		}
		return 0
	}
	z := (budget - e.P50) / e.StdDev
	return 0.5 * math.Erfc(z/math.Sqrt2)
}
