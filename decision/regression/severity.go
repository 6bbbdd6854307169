package regression

import (
	"math"
	"strings"

	"costrisk/decision/iac"
	"costrisk/pkg/confidence"
)

// Severity is the tier a severity score falls into.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders tiers from Low (0) to Critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// TierFor buckets a 0-100 score: 0-25 Low, 26-50 Medium, 51-75 High,
// 76-100 Critical.
func TierFor(score uint32) Severity {
	switch {
	case score <= 25:
		return SeverityLow
	case score <= 50:
		return SeverityMedium
	case score <= 75:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ScoringWeights sets how much each sub-score contributes. They should sum
// to 1.
type ScoringWeights struct {
	Magnitude   float64 `json:"magnitude"`
	Confidence  float64 `json:"confidence"`
	Importance  float64 `json:"importance"`
	BlastRadius float64 `json:"blast_radius"`
}

// DefaultScoringWeights returns the 45/25/20/10 calibration.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Magnitude:   0.45,
		Confidence:  0.25,
		Importance:  0.20,
		BlastRadius: 0.10,
	}
}

// magnitudeStep maps |cost delta| below Below to Score.
type magnitudeStep struct {
	Below float64
	Score float64
}

var magnitudeSteps = []magnitudeStep{
	{Below: 10, Score: 10},
	{Below: 50, Score: 30},
	{Below: 200, Score: 50},
	{Below: 500, Score: 70},
	{Below: 1000, Score: 85},
}

const magnitudeCeilingScore = 100

// importanceRule assigns Score to resource types containing any fragment.
// Rules are checked in order.
type importanceRule struct {
	Fragments []string
	Score     float64
}

var importanceTable = []importanceRule{
	{
		// databases, caches, clusters
		Fragments: []string{"db_instance", "rds", "aurora", "database", "sql", "redshift", "elasticache", "redis", "memcache", "cache", "cluster", "::dbinstance"},
		Score:     100,
	},
	{
		// instances, gateways, load balancers
		Fragments: []string{"instance", "gateway", "aws_lb", "aws_alb", "aws_elb", "load_balancer", "loadbalancer", "virtual_machine", "::ec2::"},
		Score:     75,
	},
	{
		// tables, functions, buckets
		Fragments: []string{"dynamodb", "bigtable", "function", "bucket", "s3", "storage"},
		Score:     50,
	},
	{
		// logging, security, IAM
		Fragments: []string{"log", "cloudwatch", "security", "iam", "kms", "policy", "role", "waf"},
		Score:     25,
	},
}

const defaultImportance = 40

// ResourceImportance looks up the importance score for a resource type.
func ResourceImportance(resourceType string) float64 {
	t := strings.ToLower(resourceType)
	for _, rule := range importanceTable {
		for _, fragment := range rule.Fragments {
			if strings.Contains(t, fragment) {
				return rule.Score
			}
		}
	}
	return defaultImportance
}

// MagnitudeScore maps an absolute cost delta onto the magnitude step scale.
func MagnitudeScore(costDelta float64) float64 {
	abs := math.Abs(costDelta)
	for _, step := range magnitudeSteps {
		if abs < step.Below {
			return step.Score
		}
	}
	return magnitudeCeilingScore
}

// BlastRadiusScore is 50, +30 in the root scope, +20 for shared/common
// resources, capped at 100.
func BlastRadiusScore(change iac.ResourceChange) float64 {
	score := 50.0
	if change.IsRootScope() {
		score += 30
	}
	name := strings.ToLower(change.Name)
	if strings.Contains(name, "shared") || strings.Contains(name, "common") {
		score += 20
	}
	return math.Min(score, 100)
}

// ScoreInput is everything the scorer looks at.
type ScoreInput struct {
	Change     iac.ResourceChange
	CostDelta  float64
	Regression RegressionType
	Confidence float64
}

// Breakdown holds the four normalized sub-scores and the final score.
type Breakdown struct {
	Magnitude   float64        `json:"magnitude"`
	Confidence  float64        `json:"confidence"`
	Importance  float64        `json:"importance"`
	BlastRadius float64        `json:"blast_radius"`
	Regression  RegressionType `json:"regression"`
	Score       uint32         `json:"score"`
}

// Scorer computes severity scores. Identical inputs always give identical
// scores.
type Scorer struct {
	weights ScoringWeights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights ScoringWeights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the scorer's calibration.
func (s *Scorer) Weights() ScoringWeights {
	return s.weights
}

// Score returns the 0-100 severity score.
func (s *Scorer) Score(in ScoreInput) uint32 {
	return s.Breakdown(in).Score
}

// Breakdown computes every sub-score alongside the weighted total.
func (s *Scorer) Breakdown(in ScoreInput) Breakdown {
	b := Breakdown{
		Magnitude:   MagnitudeScore(in.CostDelta),
		Confidence:  confidence.Clamp(in.Confidence) * 100,
		Importance:  ResourceImportance(in.Change.Type),
		BlastRadius: BlastRadiusScore(in.Change),
		Regression:  in.Regression,
	}

	total := b.Magnitude*s.weights.Magnitude +
		b.Confidence*s.weights.Confidence +
		b.Importance*s.weights.Importance +
		b.BlastRadius*s.weights.BlastRadius

	b.Score = uint32(math.Round(math.Max(0, math.Min(100, total))))
	return b
}
