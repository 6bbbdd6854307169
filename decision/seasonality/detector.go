// Package seasonality finds weekly, monthly and quarterly structure in a
// resource's cost history and turns it into a multiplier for today's
// estimate.
package seasonality

import (
	"time"

	"costrisk/pkg/confidence"
)

const secondsPerDay = 86400

// Config tunes the detector.
type Config struct {
	// MinDataPoints below which no detection is attempted.
	MinDataPoints int `json:"min_data_points"`
	// Threshold is the relative spread between bucket means a pattern must
	// exceed to be reported.
	Threshold float64 `json:"threshold"`
	// QuarterlyMinSpanDays is the history length required before quarterly
	// structure is considered.
	QuarterlyMinSpanDays int `json:"quarterly_min_span_days"`
	// Now supplies the day the adjustment factor is computed for.
	Now func() time.Time `json:"-"`
}

// DefaultConfig returns 30 points minimum and a 15% threshold.
func DefaultConfig() Config {
	return Config{
		MinDataPoints:        30,
		Threshold:            0.15,
		QuarterlyMinSpanDays: 180,
		Now:                  time.Now,
	}
}

// Analysis is the outcome of one detection.
type Analysis struct {
	HasSeasonality   bool      `json:"has_seasonality"`
	Patterns         []Pattern `json:"patterns"`
	Strength         float64   `json:"strength"`
	AdjustmentFactor float64   `json:"adjustment_factor"`
	DataPoints       int       `json:"data_points"`
	SpanDays         int       `json:"span_days"`
}

// Apply scales a base cost by the adjustment factor.
func (a Analysis) Apply(base float64) float64 {
	return base * a.AdjustmentFactor
}

func noSeasonality(points, spanDays int) Analysis {
	return Analysis{
		Patterns:         []Pattern{},
		AdjustmentFactor: 1.0,
		DataPoints:       points,
		SpanDays:         spanDays,
	}
}

// Detector runs seasonality detection.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector. Zero fields take their defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = def.MinDataPoints
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.QuarterlyMinSpanDays <= 0 {
		cfg.QuarterlyMinSpanDays = def.QuarterlyMinSpanDays
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Detector{cfg: cfg}
}

// Detect analyzes a series with the default configuration.
func Detect(series []CostPoint) Analysis {
	return NewDetector(DefaultConfig()).Detect(series)
}

// Detect analyzes series. Short, empty or zero-cost series report no
// seasonality with a factor of 1.
func (d *Detector) Detect(series []CostPoint) Analysis {
	n := len(series)
	if n == 0 {
		return noSeasonality(0, 0)
	}

	span := spanDays(series)
	if n < d.cfg.MinDataPoints {
		return noSeasonality(n, span)
	}

	var total float64
	for _, p := range series {
		total += p.Cost
	}
	overall := total / float64(n)
	if overall <= 0 {
		return noSeasonality(n, span)
	}

	var patterns []Pattern
	if p, ok := d.weekly(series, overall); ok {
		patterns = append(patterns, p)
	}
	if p, ok := d.monthly(series, overall); ok {
		patterns = append(patterns, p)
	}
	if span >= d.cfg.QuarterlyMinSpanDays {
		if p, ok := d.quarterly(series, overall); ok {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return noSeasonality(n, span)
	}

	today := d.cfg.Now().Unix() / secondsPerDay
	strengths := make([]float64, len(patterns))
	multipliers := make([]float64, len(patterns))
	var strengthSum float64
	for i, p := range patterns {
		strengths[i] = p.Strength
		multipliers[i] = p.MultiplierAt(today)
		strengthSum += p.Strength
	}

	return Analysis{
		HasSeasonality:   true,
		Patterns:         patterns,
		Strength:         strengthSum / float64(len(patterns)),
		AdjustmentFactor: confidence.WeightedAverage(multipliers, strengths, 1.0),
		DataPoints:       n,
		SpanDays:         span,
	}
}

func (d *Detector) weekly(series []CostPoint, overall float64) (Pattern, bool) {
	buckets := make([]bucket, 2)
	for _, p := range series {
		if isWeekend(epochDay(p.Timestamp)) {
			buckets[1].add(p.Cost)
		} else {
			buckets[0].add(p.Cost)
		}
	}
	return d.spread(KindWeekly, []string{"weekday", "weekend"}, buckets, overall)
}

// monthly splits a simplified 30-day month into days 1-10, 11-20 and 21-30.
func (d *Detector) monthly(series []CostPoint, overall float64) (Pattern, bool) {
	buckets := make([]bucket, 3)
	for _, p := range series {
		dom := epochDay(p.Timestamp)%30 + 1
		switch {
		case dom <= 10:
			buckets[0].add(p.Cost)
		case dom <= 20:
			buckets[1].add(p.Cost)
		default:
			buckets[2].add(p.Cost)
		}
	}
	return d.spread(KindMonthly, []string{"early-month", "mid-month", "late-month"}, buckets, overall)
}

func (d *Detector) quarterly(series []CostPoint, overall float64) (Pattern, bool) {
	buckets := make([]bucket, 3)
	for _, p := range series {
		buckets[(epochDay(p.Timestamp)/30)%3].add(p.Cost)
	}
	return d.spread(KindQuarterly, []string{"first-month", "second-month", "last-month"}, buckets, overall)
}

// spread reports a pattern when the highest and lowest bucket means differ by
// more than the threshold, relative to the overall mean. Every bucket must
// have data.
func (d *Detector) spread(kind PatternKind, labels []string, buckets []bucket, overall float64) (Pattern, bool) {
	hi, lo := 0, 0
	for i, b := range buckets {
		if b.n == 0 {
			return Pattern{}, false
		}
		if b.mean() > buckets[hi].mean() {
			hi = i
		}
		if b.mean() < buckets[lo].mean() {
			lo = i
		}
	}

	peak := buckets[hi].mean() / overall
	trough := buckets[lo].mean() / overall
	strength := peak - trough
	if strength <= d.cfg.Threshold {
		return Pattern{}, false
	}

	return Pattern{
		Kind:             kind,
		PeriodDays:       kind.PeriodDays(),
		Strength:         confidence.Clamp(strength),
		PeakMultiplier:   peak,
		TroughMultiplier: trough,
		Description:      describe(kind, labels[hi], labels[lo], peak, trough),
	}, true
}

type bucket struct {
	sum float64
	n   int
}

func (b *bucket) add(v float64) {
	b.sum += v
	b.n++
}

func (b bucket) mean() float64 {
	if b.n == 0 {
		return 0
	}
	return b.sum / float64(b.n)
}

func epochDay(ts uint64) int64 {
	return int64(ts / secondsPerDay)
}

// isWeekend treats epoch day 0 (1970-01-01) as a Thursday.
func isWeekend(day int64) bool {
	wd := time.Weekday((day + 4) % 7)
	return wd == time.Saturday || wd == time.Sunday
}

func spanDays(series []CostPoint) int {
	lo, hi := series[0].Timestamp, series[0].Timestamp
	for _, p := range series[1:] {
		if p.Timestamp < lo {
			lo = p.Timestamp
		}
		if p.Timestamp > hi {
			hi = p.Timestamp
		}
	}
	return int((hi - lo) / secondsPerDay)
}
