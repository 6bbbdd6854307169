package seasonality

import (
	"fmt"
	"math"
)

// PatternKind names a periodic structure in a cost series.
type PatternKind string

const (
	KindWeekly    PatternKind = "weekly"
	KindMonthly   PatternKind = "monthly"
	KindQuarterly PatternKind = "quarterly"
	KindAnnual    PatternKind = "annual"
	KindCustom    PatternKind = "custom"
)

// PeriodDays is the period length for the kind, using simplified 30-day
// months. Custom patterns carry their own period.
func (k PatternKind) PeriodDays() int {
	switch k {
	case KindWeekly:
		return 7
	case KindMonthly:
		return 30
	case KindQuarterly:
		return 90
	case KindAnnual:
		return 365
	default:
		return 0
	}
}

// CostPoint is one observation of a resource's cost.
type CostPoint struct {
	Timestamp uint64  `json:"timestamp"` // unix seconds
	Cost      float64 `json:"cost"`
}

// Pattern is a detected periodic structure.
type Pattern struct {
	Kind             PatternKind `json:"kind"`
	PeriodDays       int         `json:"period_days"`
	Strength         float64     `json:"strength"`
	PeakMultiplier   float64     `json:"peak_multiplier"`
	TroughMultiplier float64     `json:"trough_multiplier"`
	Description      string      `json:"description"`
}

// Amplitude is half the peak-to-trough spread.
func (p Pattern) Amplitude() float64 {
	return (p.PeakMultiplier - p.TroughMultiplier) / 2
}

// Phase is the position of epochDay within the pattern's period, in [0, 1).
func (p Pattern) Phase(epochDay int64) float64 {
	period := int64(p.PeriodDays)
	if period <= 0 {
		return 0
	}
	pos := epochDay % period
	if pos < 0 {
		pos += period
	}
	return float64(pos) / float64(period)
}

// MultiplierAt maps the phase of epochDay through a sine wave that troughs
// at phase 0 and peaks at phase 0.5.
func (p Pattern) MultiplierAt(epochDay int64) float64 {
	phase := p.Phase(epochDay)
	return 1 + p.Amplitude()*math.Sin(2*math.Pi*(phase-0.25))
}

func describe(kind PatternKind, peak, trough string, peakMul, troughMul float64) string {
	return fmt.Sprintf("%s pattern: %s peaks at %.2fx of mean, %s dips to %.2fx",
		kind, peak, peakMul, trough, troughMul)
}
