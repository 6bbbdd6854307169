package probabilistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrisk/decision/cost"
)

func factorNames(factors []UncertaintyFactor) []string {
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Name)
	}
	return names
}

// TestGenerateEstimate_ServerlessExample checks the 200 / 0.7 serverless case.
func TestGenerateEstimate_ServerlessExample(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	est := p.GenerateEstimate(200.0, 0.7, "serverless-function", false, "fn.resize")

	// base 0.05 + 0.3*0.45 = 0.185, resource 0.20, sigma = 200 * 0.385 = 77
	assert.Equal(t, 200.0, est.P50)
	assert.InDelta(t, 77.0, est.StdDev, 1e-9)
	assert.InDelta(t, 101.44, est.P10, 1e-9)
	assert.InDelta(t, 298.56, est.P90, 1e-9)
	assert.InDelta(t, 379.41, est.P99, 1e-9)
	assert.InDelta(t, 0.385, est.CoefficientOfVariation, 1e-9)
	assert.Equal(t, RiskHigh, est.RiskLevel)

	assert.Less(t, est.P10, est.P50)
	assert.Less(t, est.P50, est.P90)
	assert.Less(t, est.P90, est.P99)

	scenarios := est.ToScenarioAnalysis()
	assert.Greater(t, scenarios.CostAtRisk, 0.0)
	assert.InDelta(t, 98.56, scenarios.CostAtRisk, 1e-9)

	assert.Equal(t, []string{"low-confidence", "usage-dependent"}, factorNames(est.Factors))
	assert.InDelta(t, 0.18, est.Factors[0].Impact, 1e-9)
	assert.InDelta(t, 0.20, est.Factors[1].Impact, 1e-9)
}

func TestGenerateEstimate_FullConfidenceFixed(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	est := p.GenerateEstimate(1000, 1.0, "aws_db_instance", false, "aws_db_instance.main")

	// 0.05 + 0.03 = 0.08
	assert.InDelta(t, 80.0, est.StdDev, 1e-9)
	assert.Equal(t, RiskLow, est.RiskLevel)
	assert.Empty(t, est.Factors, "fully confident fixed-rate resources carry no factors")
}

func TestGenerateEstimate_P10Floor(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	est := p.GenerateEstimate(50, 0.0, "aws_eks_cluster", true, "aws_eks_cluster.main")

	// 0.50 + 0.35 = 0.85 -> 1.28 * 0.85 > 1
	assert.Equal(t, 0.0, est.P10)
	assert.Equal(t, RiskVeryHigh, est.RiskLevel)
	assert.Equal(t, []string{"cold-start", "low-confidence", "workload-scheduling"}, factorNames(est.Factors))
	assert.Equal(t, 0.40, est.Factors[0].Impact)
}

func TestGenerateEstimate_ZeroBase(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	est := p.GenerateEstimate(0, 0.5, "aws_lambda_function", false, "fn")
	assert.Equal(t, 0.0, est.CoefficientOfVariation)
	assert.Equal(t, RiskLow, est.RiskLevel)
	assert.Equal(t, 0.0, est.P99)

	negative := p.GenerateEstimate(-40, 0.5, "aws_lambda_function", false, "fn")
	assert.Equal(t, est.P50, negative.P50, "negative base is clamped to zero")
}

// TestColdStartIncreasesUncertainty compares a cold-start, low-confidence
// estimate against a configured, confident one for the same resource.
func TestColdStartIncreasesUncertainty(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	for _, resourceType := range []string{"aws_instance", "aws_dynamodb_table", "aws_s3_bucket", "aws_cloudfront_distribution", "custom_thing"} {
		cold := p.GenerateEstimate(300, 0.5, resourceType, true, "r")
		warm := p.GenerateEstimate(300, 0.9, resourceType, false, "r")
		assert.Greater(t, cold.CoefficientOfVariation, warm.CoefficientOfVariation, resourceType)
	}
}

func TestClassifyRisk_Boundaries(t *testing.T) {
	assert.Equal(t, RiskLow, ClassifyRisk(0.14))
	assert.Equal(t, RiskModerate, ClassifyRisk(0.15))
	assert.Equal(t, RiskModerate, ClassifyRisk(0.29))
	assert.Equal(t, RiskHigh, ClassifyRisk(0.30))
	assert.Equal(t, RiskHigh, ClassifyRisk(0.49))
	assert.Equal(t, RiskVeryHigh, ClassifyRisk(0.50))
}

func TestClassOf_Table(t *testing.T) {
	cases := map[string]VariabilityClass{
		"aws_instance":                ClassFixed,
		"aws_db_instance":             ClassFixed,
		"aws_rds_cluster":             ClassFixed,
		"aws_nat_gateway":             ClassFixed,
		"aws_dynamodb_table":          ClassMetered,
		"aws_elasticache_cluster":     ClassMetered,
		"aws_lambda_function":         ClassRequestDriven,
		"serverless-function":         ClassRequestDriven,
		"aws_s3_bucket":               ClassRequestDriven,
		"aws_eks_cluster":             ClassComplex,
		"aws_ecs_service":             ClassComplex,
		"aws_cloudfront_distribution": ClassComplex,
		"aws_route53_zone":            ClassUnknown,
		"aws_route_table":             ClassUnknown,
		"aws_route_table_association": ClassUnknown,
		"aws_lambda_permission":       ClassUnknown,
		"google_bigtable_table":       ClassMetered,
	}
	for resourceType, want := range cases {
		assert.Equal(t, want, ClassOf(resourceType), resourceType)
	}

	cfg := DefaultConfig()
	assert.Equal(t, 0.15, cfg.ResourceUncertaintyFor("aws_route53_zone"))
	assert.Equal(t, 0.35, cfg.ResourceUncertaintyFor("aws_cloudfront_distribution"))

	_, ok := resourceFactor("aws_route_table", cfg.ResourceUncertaintyFor("aws_route_table"))
	assert.False(t, ok, "route tables are free")
	_, ok = resourceFactor("aws_lambda_permission", cfg.ResourceUncertaintyFor("aws_lambda_permission"))
	assert.False(t, ok, "lambda permissions are free")
}

func TestResourceFactors(t *testing.T) {
	p := NewPredictor(DefaultConfig())

	cdn := p.GenerateEstimate(100, 0.95, "aws_cloudfront_distribution", false, "cdn")
	assert.Equal(t, []string{"traffic-variability"}, factorNames(cdn.Factors))

	bucket := p.GenerateEstimate(100, 0.95, "aws_s3_bucket", false, "b")
	assert.Equal(t, []string{"storage-growth"}, factorNames(bucket.Factors))

	table := p.GenerateEstimate(100, 0.95, "aws_dynamodb_table", false, "t")
	assert.Equal(t, []string{"throughput-metering"}, factorNames(table.Factors))
}

func TestFromCostEstimate(t *testing.T) {
	p := NewPredictor(DefaultConfig())
	ce := cost.NewEstimate("aws_instance.web", 70, 60, 80, 0.85, true)

	est := p.FromCostEstimate(ce, "aws_instance")
	assert.Equal(t, "aws_instance.web", est.ResourceID)
	assert.Equal(t, 70.0, est.P50)
	assert.True(t, est.ColdStart)
	require.NotEmpty(t, est.Factors)
	assert.Equal(t, "cold-start", est.Factors[0].Name)
}

func TestScenarioAnalysis(t *testing.T) {
	est := Estimate{ResourceID: "r", P10: 80, P50: 100, P90: 130, P99: 170, RiskLevel: RiskModerate}

	sa := est.ToScenarioAnalysis()
	require.Len(t, sa.Scenarios, 4)
	assert.Equal(t, ScenarioBestCase, sa.Scenarios[0].Name)
	assert.Equal(t, 0.10, sa.Scenarios[0].Probability)
	assert.Equal(t, ScenarioCatastrophicCase, sa.Scenarios[3].Name)
	assert.Equal(t, 0.99, sa.Scenarios[3].Probability)
	assert.Equal(t, 170.0, sa.Scenarios[3].MonthlyCost)
	assert.Equal(t, 30.0, sa.CostAtRisk)
	assert.Equal(t, 100.0, sa.ExpectedCost)
	assert.Equal(t, RiskModerate, sa.RiskLevel)
}

func TestProbabilityAbove(t *testing.T) {
	est := Estimate{P50: 100, StdDev: 20}

	assert.InDelta(t, 0.5, est.ProbabilityAbove(100), 1e-9)
	assert.InDelta(t, 0.1003, est.ProbabilityAbove(125.6), 1e-3)
	assert.Less(t, est.ProbabilityAbove(200), 0.001)

	flat := Estimate{P50: 100}
	assert.Equal(t, 1.0, flat.ProbabilityAbove(99))
	assert.Equal(t, 0.0, flat.ProbabilityAbove(100))
}
