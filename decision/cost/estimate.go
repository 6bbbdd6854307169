// Package cost holds the point cost estimate shared by the detection and
// uncertainty engines.
package cost

import (
	"github.com/shopspring/decimal"

	"costrisk/pkg/confidence"
)

// Estimate is a point prediction of a resource's monthly cost.
type Estimate struct {
	ResourceID  string  `json:"resource_id"`
	MonthlyCost float64 `json:"monthly_cost"`
	Low         float64 `json:"low"`
	High        float64 `json:"high"`
	Confidence  float64 `json:"confidence"`
	// ColdStart is set when the estimate was inferred without configuration.
	ColdStart bool `json:"cold_start"`
}

// NewEstimate builds a normalized estimate.
func NewEstimate(resourceID string, monthly, low, high, conf float64, coldStart bool) Estimate {
	return Estimate{
		ResourceID:  resourceID,
		MonthlyCost: monthly,
		Low:         low,
		High:        high,
		Confidence:  conf,
		ColdStart:   coldStart,
	}.Normalize()
}

// Normalize clamps confidence to [0,1] and widens the interval so it
// brackets the point estimate.
func (e Estimate) Normalize() Estimate {
	e.Confidence = confidence.Clamp(e.Confidence)
	if e.Low > e.MonthlyCost {
		e.Low = e.MonthlyCost
	}
	if e.High < e.MonthlyCost {
		e.High = e.MonthlyCost
	}
	return e
}

// Scale multiplies the point estimate and both bounds by factor.
func (e Estimate) Scale(factor float64) Estimate {
	e.MonthlyCost *= factor
	e.Low *= factor
	e.High *= factor
	if factor < 0 {
		e.Low, e.High = e.High, e.Low
	}
	return e
}

// FormatUSD renders an amount with two decimals, e.g. "$1234.50".
func FormatUSD(amount float64) string {
	d := decimal.NewFromFloat(amount)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatDelta renders a signed monthly delta, e.g. "+$12.00/mo".
func FormatDelta(delta float64) string {
	if delta >= 0 {
		return "+" + FormatUSD(delta) + "/mo"
	}
	return FormatUSD(delta) + "/mo"
}
