// Package probabilistic derives closed-form cost uncertainty bands from a
// point estimate, a confidence score and the resource type's pricing model.
// It is the cheap counterpart to a full Monte Carlo run.
package probabilistic

import (
	"fmt"
	"math"
	"strings"

	"costrisk/decision/cost"
	"costrisk/pkg/confidence"
)

// VariabilityClass groups resource types by how predictable their bill is.
type VariabilityClass string

const (
	ClassFixed         VariabilityClass = "fixed"          // instances, managed databases, fixed-rate gateways
	ClassMetered       VariabilityClass = "metered"        // key-value tables, in-memory caches
	ClassRequestDriven VariabilityClass = "request_driven" // serverless functions, object storage
	ClassComplex       VariabilityClass = "complex"        // container orchestration, CDN
	ClassUnknown       VariabilityClass = "unknown"
)

type classRule struct {
	Class     VariabilityClass
	Fragments []string
}

// Checked in order; the first class with a matching fragment wins.
var classTable = []classRule{
	{Class: ClassComplex, Fragments: []string{"eks", "ecs", "aks", "gke", "kubernetes", "container", "cloudfront", "cdn", "front_door", "frontdoor"}},
	{Class: ClassRequestDriven, Fragments: []string{"function", "s3", "bucket", "storage", "blob"}},
	{Class: ClassMetered, Fragments: []string{"dynamodb", "elasticache", "redis", "memcache", "cache", "cosmosdb", "bigtable"}},
	{Class: ClassFixed, Fragments: []string{"instance", "db_", "rds", "database", "nat_gateway", "gateway", "virtual_machine", "vm"}},
}

// ClassOf maps a resource type to its variability class.
func ClassOf(resourceType string) VariabilityClass {
	t := strings.ToLower(resourceType)
	for _, rule := range classTable {
		for _, fragment := range rule.Fragments {
			if strings.Contains(t, fragment) {
				return rule.Class
			}
		}
	}
	return ClassUnknown
}

// Config holds the predictor's calibration constants.
type Config struct {
	// Base uncertainty is Floor + (1-confidence)*Span.
	BaseUncertaintyFloor float64 `json:"base_uncertainty_floor"`
	BaseUncertaintySpan  float64 `json:"base_uncertainty_span"`

	ResourceUncertainty map[VariabilityClass]float64 `json:"resource_uncertainty"`

	// Normal-approximation z-scores.
	Z10 float64 `json:"z10"`
	Z90 float64 `json:"z90"`
	Z99 float64 `json:"z99"`

	ColdStartImpact          float64 `json:"cold_start_impact"`
	LowConfidenceThreshold   float64 `json:"low_confidence_threshold"`
	LowConfidenceImpactScale float64 `json:"low_confidence_impact_scale"`
}

// DefaultConfig returns the standard calibration.
func DefaultConfig() Config {
	return Config{
		BaseUncertaintyFloor: 0.05,
		BaseUncertaintySpan:  0.45,
		ResourceUncertainty: map[VariabilityClass]float64{
			ClassFixed:         0.03,
			ClassMetered:       0.10,
			ClassRequestDriven: 0.20,
			ClassComplex:       0.35,
			ClassUnknown:       0.15,
		},
		Z10:                      1.28,
		Z90:                      1.28,
		Z99:                      2.33,
		ColdStartImpact:          0.40,
		LowConfidenceThreshold:   confidence.MediumConfidence,
		LowConfidenceImpactScale: 0.6,
	}
}

// BaseUncertainty is the confidence-driven part of the spread.
func (c Config) BaseUncertainty(conf float64) float64 {
	return c.BaseUncertaintyFloor + (1-confidence.Clamp(conf))*c.BaseUncertaintySpan
}

// ResourceUncertaintyFor is the pricing-model part of the spread.
func (c Config) ResourceUncertaintyFor(resourceType string) float64 {
	if u, ok := c.ResourceUncertainty[ClassOf(resourceType)]; ok {
		return u
	}
	return c.ResourceUncertainty[ClassUnknown]
}

// UncertaintyRatio is the standard deviation as a fraction of base cost.
func (c Config) UncertaintyRatio(conf float64, resourceType string) float64 {
	return c.BaseUncertainty(conf) + c.ResourceUncertaintyFor(resourceType)
}

// RiskLevel buckets the coefficient of variation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// ClassifyRisk maps a coefficient of variation onto a risk level:
// <0.15 Low, <0.30 Moderate, <0.50 High, otherwise VeryHigh.
func ClassifyRisk(cov float64) RiskLevel {
	switch {
	case cov < 0.15:
		return RiskLow
	case cov < 0.30:
		return RiskModerate
	case cov < 0.50:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// UncertaintyFactor names one reason the estimate is uncertain.
type UncertaintyFactor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
}

// Estimate is a closed-form uncertainty band for one resource.
type Estimate struct {
	ResourceID             string              `json:"resource_id"`
	ResourceType           string              `json:"resource_type"`
	P10                    float64             `json:"p10"`
	P50                    float64             `json:"p50"`
	P90                    float64             `json:"p90"`
	P99                    float64             `json:"p99"`
	StdDev                 float64             `json:"std_dev"`
	CoefficientOfVariation float64             `json:"coefficient_of_variation"`
	RiskLevel              RiskLevel           `json:"risk_level"`
	Confidence             float64             `json:"confidence"`
	ColdStart              bool                `json:"cold_start"`
	Factors                []UncertaintyFactor `json:"uncertainty_factors"`
}

// Predictor produces Estimates. It holds only immutable calibration.
type Predictor struct {
	cfg Config
}

// NewPredictor creates a predictor with the given calibration.
func NewPredictor(cfg Config) *Predictor {
	return &Predictor{cfg: cfg}
}

// GenerateEstimate builds the P10/P50/P90/P99 band around baseCost.
// Negative base costs are treated as zero.
func (p *Predictor) GenerateEstimate(baseCost, conf float64, resourceType string, coldStart bool, resourceID string) Estimate {
	base := math.Max(0, baseCost)
	conf = confidence.Clamp(conf)
	sigma := base * p.cfg.UncertaintyRatio(conf, resourceType)

	est := Estimate{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		P10:          math.Max(0, base-p.cfg.Z10*sigma),
		P50:          base,
		P90:          base + p.cfg.Z90*sigma,
		P99:          base + p.cfg.Z99*sigma,
		StdDev:       sigma,
		Confidence:   conf,
		ColdStart:    coldStart,
	}
	if base > 0 {
		est.CoefficientOfVariation = sigma / base
	}
	est.RiskLevel = ClassifyRisk(est.CoefficientOfVariation)
	est.Factors = p.factors(conf, resourceType, coldStart)
	return est
}

// FromCostEstimate runs the predictor on a point estimate.
func (p *Predictor) FromCostEstimate(est cost.Estimate, resourceType string) Estimate {
	return p.GenerateEstimate(est.MonthlyCost, est.Confidence, resourceType, est.ColdStart, est.ResourceID)
}

func (p *Predictor) factors(conf float64, resourceType string, coldStart bool) []UncertaintyFactor {
	factors := make([]UncertaintyFactor, 0, 3)

	if coldStart {
		factors = append(factors, UncertaintyFactor{
			Name:        "cold-start",
			Description: "No configuration was available; the estimate uses default assumptions",
			Impact:      p.cfg.ColdStartImpact,
		})
	}

	if !confidence.AboveThreshold(conf, p.cfg.LowConfidenceThreshold) {
		factors = append(factors, UncertaintyFactor{
			Name:        "low-confidence",
			Description: fmt.Sprintf("Estimate confidence %.0f%% is below %.0f%%", conf*100, p.cfg.LowConfidenceThreshold*100),
			Impact:      (1 - conf) * p.cfg.LowConfidenceImpactScale,
		})
	}

	if f, ok := resourceFactor(resourceType, p.cfg.ResourceUncertaintyFor(resourceType)); ok {
		factors = append(factors, f)
	}
	return factors
}

func resourceFactor(resourceType string, impact float64) (UncertaintyFactor, bool) {
	t := strings.ToLower(resourceType)

	switch ClassOf(resourceType) {
	case ClassRequestDriven:
		if strings.Contains(t, "function") {
			return UncertaintyFactor{Name: "usage-dependent", Description: "Cost scales with invocation count and duration", Impact: impact}, true
		}
		return UncertaintyFactor{Name: "storage-growth", Description: "Cost scales with stored data and request volume", Impact: impact}, true
	case ClassComplex:
		if strings.Contains(t, "cloudfront") || strings.Contains(t, "cdn") || strings.Contains(t, "front") {
			return UncertaintyFactor{Name: "traffic-variability", Description: "Cost follows edge traffic and data transfer", Impact: impact}, true
		}
		return UncertaintyFactor{Name: "workload-scheduling", Description: "Cost depends on scheduled workloads and node autoscaling", Impact: impact}, true
	case ClassMetered:
		return UncertaintyFactor{Name: "throughput-metering", Description: "Cost follows consumed read/write or cache throughput", Impact: impact}, true
	default:
		return UncertaintyFactor{}, false
	}
}
