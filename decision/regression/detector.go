package regression

import (
	"fmt"

	"github.com/google/uuid"

	"costrisk/decision/cost"
	"costrisk/decision/iac"
	"costrisk/pkg/confidence"
)

// Detection is the classifier and scorer output for one resource change.
type Detection struct {
	ID            uuid.UUID      `json:"id"`
	ResourceID    string         `json:"resource_id"`
	ResourceType  string         `json:"resource_type"`
	Regression    RegressionType `json:"regression_type"`
	Severity      Severity       `json:"severity"`
	SeverityScore uint32         `json:"severity_score"`
	CostDelta     float64        `json:"cost_delta"`
	Message       string         `json:"message"`
	Evidence      []string       `json:"evidence,omitempty"`
	Breakdown     Breakdown      `json:"breakdown"`
	Estimate      *cost.Estimate `json:"estimate,omitempty"`
}

// Detector combines the classifier and the scorer.
type Detector struct {
	classifier *Classifier
	scorer     *Scorer
	// DefaultConfidence is used when a change has no cost estimate.
	DefaultConfidence float64
}

// NewDetector creates a detector scoring with the given weights.
func NewDetector(weights ScoringWeights) *Detector {
	return &Detector{
		classifier:        NewClassifier(),
		scorer:            NewScorer(weights),
		DefaultConfidence: confidence.MinConfidence,
	}
}

// Detect classifies and scores a change. The cost delta is the estimate's
// monthly cost, negated for deletes; without an estimate the delta is zero.
func (d *Detector) Detect(change iac.ResourceChange, estimate *cost.Estimate) Detection {
	delta := 0.0
	conf := d.DefaultConfidence
	if estimate != nil {
		delta = estimate.MonthlyCost
		if change.Action == iac.ActionDelete {
			delta = -delta
		}
		conf = estimate.Confidence
	}
	return d.detect(change, delta, conf, estimate)
}

// DetectDelta scores a change against an explicitly computed cost delta.
func (d *Detector) DetectDelta(change iac.ResourceChange, costDelta, conf float64) Detection {
	return d.detect(change, costDelta, conf, nil)
}

func (d *Detector) detect(change iac.ResourceChange, delta, conf float64, estimate *cost.Estimate) Detection {
	classification := d.classifier.ClassifyWithEvidence(change)
	breakdown := d.scorer.Breakdown(ScoreInput{
		Change:     change,
		CostDelta:  delta,
		Regression: classification.Type,
		Confidence: conf,
	})
	severity := TierFor(breakdown.Score)

	det := Detection{
		ID:            uuid.New(),
		ResourceID:    change.ID,
		ResourceType:  change.Type,
		Regression:    classification.Type,
		Severity:      severity,
		SeverityScore: breakdown.Score,
		CostDelta:     delta,
		Evidence:      classification.Evidence,
		Breakdown:     breakdown,
		Message: fmt.Sprintf("%s regression on %s: %s (severity %s, score %d)",
			classification.Type.Label(), change.ID, cost.FormatDelta(delta), severity, breakdown.Score),
	}
	if estimate != nil {
		linked := *estimate
		det.Estimate = &linked
	}
	return det
}
