// Package policy evaluates budget and risk policies against analysis results.
package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"costrisk/decision/estimation"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeCostLimit           PolicyType = "cost_limit"
	PolicyTypeCostGrowth          PolicyType = "cost_growth"
	PolicyTypeVaRBudget           PolicyType = "var_budget"
	PolicyTypeBreachProbability   PolicyType = "breach_probability"
	PolicyTypeConfidenceThreshold PolicyType = "confidence_threshold"
	PolicyTypeSeverityGate        PolicyType = "severity_gate"
	PolicyTypeRiskLevel           PolicyType = "risk_level"
	PolicyTypeIncompleteEstimate  PolicyType = "incomplete_estimate"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a governance rule.
//
// Threshold is dollars for cost_limit, cost_growth and var_budget, and a
// percentage for breach_probability and confidence_threshold. Budget is the
// monthly budget breach_probability compares against; MinSeverity is the
// tier severity_gate fires at.
type Policy struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        PolicyType          `json:"type"`
	Severity    Severity            `json:"severity"`
	Threshold   float64             `json:"threshold"`
	Budget      float64             `json:"budget,omitempty"`
	MinSeverity regression.Severity `json:"min_severity,omitempty"`
	Enabled     bool                `json:"enabled"`
}

// Validate checks that a policy can be evaluated.
func (p Policy) Validate() error {
	switch p.Type {
	case PolicyTypeCostLimit, PolicyTypeCostGrowth, PolicyTypeVaRBudget,
		PolicyTypeConfidenceThreshold, PolicyTypeRiskLevel, PolicyTypeIncompleteEstimate:
	case PolicyTypeBreachProbability:
		if p.Budget <= 0 {
			return fmt.Errorf("policy %s: breach_probability needs a positive budget", p.ID)
		}
	case PolicyTypeSeverityGate:
		if p.MinSeverity.Rank() < 0 {
			return fmt.Errorf("policy %s: unknown min_severity %q", p.ID, p.MinSeverity)
		}
	default:
		return fmt.Errorf("policy %s: unknown type %q", p.ID, p.Type)
	}

	switch p.Severity {
	case SeverityError, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("policy %s: unknown severity %q", p.ID, p.Severity)
	}
	if p.Threshold < 0 {
		return fmt.Errorf("policy %s: threshold must be non-negative", p.ID)
	}
	return nil
}

// LoadPolicies reads a JSON array of policies and validates each.
func LoadPolicies(r io.Reader) ([]Policy, error) {
	var policies []Policy
	if err := json.NewDecoder(r).Decode(&policies); err != nil {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return policies, nil
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Warning represents a policy warning
type Warning struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
}

// EvaluationRequest contains the input for policy evaluation
type EvaluationRequest struct {
	Analysis       *estimation.Analysis
	Environment    string
	CustomPolicies []Policy
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates policies against analyses
type Engine struct {
	policies []Policy
}

// NewEngine creates a new policy engine with the default policies
func NewEngine() *Engine {
	return &Engine{
		policies: defaultPolicies(),
	}
}

// AddPolicy adds a custom policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns the configured policies.
func (e *Engine) Policies() []Policy {
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Evaluate runs all enabled policies against the analysis
func (e *Engine) Evaluate(req EvaluationRequest) (*EvaluationResult, error) {
	if req.Analysis == nil {
		return nil, fmt.Errorf("policy evaluation requires an analysis")
	}

	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		Warnings:    make([]Warning, 0),
		EvaluatedAt: time.Now(),
	}

	allPolicies := make([]Policy, 0, len(e.policies)+len(req.CustomPolicies))
	allPolicies = append(allPolicies, e.policies...)
	allPolicies = append(allPolicies, req.CustomPolicies...)

	for _, policy := range allPolicies {
		if !policy.Enabled {
			continue
		}
		if err := policy.Validate(); err != nil {
			return nil, err
		}

		result.PoliciesRan++
		message, breached := evaluatePolicy(policy, req.Analysis, req.Environment)
		if !breached {
			continue
		}

		if policy.Severity == SeverityError {
			result.Violations = append(result.Violations, Violation{
				PolicyID:   policy.ID,
				PolicyName: policy.Name,
				Message:    message,
				Severity:   string(policy.Severity),
			})
			result.Decision = DecisionDeny
			continue
		}

		result.Warnings = append(result.Warnings, Warning{
			PolicyID: policy.ID,
			Message:  message,
		})
		if result.Decision == DecisionPass {
			result.Decision = DecisionWarn
		}
	}

	return result, nil
}

func evaluatePolicy(p Policy, a *estimation.Analysis, env string) (string, bool) {
	threshold := decimal.NewFromFloat(p.Threshold)

	switch p.Type {
	case PolicyTypeCostLimit:
		if a.MonthlyCostP90.GreaterThan(threshold) {
			return fmt.Sprintf("Monthly cost P90 ($%s) exceeds limit ($%s)",
				a.MonthlyCostP90.StringFixed(2), threshold.StringFixed(2)), true
		}

	case PolicyTypeCostGrowth:
		if a.CostDelta.GreaterThan(threshold) {
			return fmt.Sprintf("Monthly cost increase ($%s) exceeds allowed growth ($%s)",
				a.CostDelta.StringFixed(2), threshold.StringFixed(2)), true
		}

	case PolicyTypeVaRBudget:
		if a.Simulation == nil {
			return "", false
		}
		varCost := decimal.NewFromFloat(a.Simulation.VaR95)
		if varCost.GreaterThan(threshold) {
			return fmt.Sprintf("Simulated VaR95 ($%s) exceeds budget ($%s)",
				varCost.StringFixed(2), threshold.StringFixed(2)), true
		}

	case PolicyTypeBreachProbability:
		prob := BreachProbability(a, p.Budget)
		if prob*100 > p.Threshold {
			return fmt.Sprintf("Probability of exceeding $%s/mo (%.1f%%) is above %.1f%%",
				decimal.NewFromFloat(p.Budget).StringFixed(2), prob*100, p.Threshold), true
		}

	case PolicyTypeConfidenceThreshold:
		if a.Confidence < p.Threshold/100 {
			return fmt.Sprintf("Estimation confidence (%.0f%%) below threshold (%.0f%%)",
				a.Confidence*100, p.Threshold), true
		}

	case PolicyTypeSeverityGate:
		if a.HighestSeverity.Rank() >= p.MinSeverity.Rank() {
			return fmt.Sprintf("Highest detection severity %s reaches gate %s",
				a.HighestSeverity, p.MinSeverity), true
		}

	case PolicyTypeRiskLevel:
		var risky []string
		for _, r := range a.Resources {
			if r.Prediction != nil && r.Prediction.RiskLevel == probabilistic.RiskVeryHigh {
				risky = append(risky, r.ResourceID)
			}
		}
		if len(risky) > 0 {
			return fmt.Sprintf("%d resource(s) with very high cost uncertainty: %v", len(risky), risky), true
		}

	case PolicyTypeIncompleteEstimate:
		missing := a.ResourcesAnalyzed - a.ResourcesEstimated
		if missing > 0 && env == "prod" {
			return fmt.Sprintf("Incomplete estimation not allowed in production (%d resources without estimates)", missing), true
		}
	}

	return "", false
}

// BreachProbability is the probability that the projected monthly total
// exceeds budget. It uses the simulation when one ran, otherwise a normal
// approximation combining the per-resource bands as independent.
func BreachProbability(a *estimation.Analysis, budget float64) float64 {
	if a.Simulation != nil {
		return a.Simulation.ProbabilityAbove(budget)
	}

	var variance float64
	for _, r := range a.Resources {
		if r.Prediction == nil || r.Detection.CostDelta < 0 {
			continue
		}
		variance += r.Prediction.StdDev * r.Prediction.StdDev
	}
	total := probabilistic.Estimate{
		P50:    a.MonthlyCostP50.InexactFloat64(),
		StdDev: math.Sqrt(variance),
	}
	return total.ProbabilityAbove(budget)
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:          "default-confidence",
			Name:        "Minimum Confidence",
			Description: "Warn when estimation confidence is below 70%",
			Type:        PolicyTypeConfidenceThreshold,
			Severity:    SeverityWarning,
			Threshold:   70,
			Enabled:     true,
		},
		{
			ID:          "default-risk",
			Name:        "Very High Uncertainty",
			Description: "Warn when any resource's cost band is very wide",
			Type:        PolicyTypeRiskLevel,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "critical-regression",
			Name:        "Critical Regression",
			Description: "Warn on critical cost regressions",
			Type:        PolicyTypeSeverityGate,
			Severity:    SeverityWarning,
			MinSeverity: regression.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:          "prod-incomplete",
			Name:        "No Incomplete in Prod",
			Description: "Block incomplete estimations in production",
			Type:        PolicyTypeIncompleteEstimate,
			Severity:    SeverityError,
			Enabled:     true,
		},
	}
}
