package seasonality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dailySeries builds one point per day from epoch day 0, noon UTC.
func dailySeries(days int, costFor func(day int) float64) []CostPoint {
	series := make([]CostPoint, days)
	for d := 0; d < days; d++ {
		series[d] = CostPoint{Timestamp: uint64(d*secondsPerDay + 12*3600), Cost: costFor(d)}
	}
	return series
}

func fixedClock(day int64) func() time.Time {
	return func() time.Time { return time.Unix(day*secondsPerDay+3600, 0).UTC() }
}

func findPattern(a Analysis, kind PatternKind) (Pattern, bool) {
	for _, p := range a.Patterns {
		if p.Kind == kind {
			return p, true
		}
	}
	return Pattern{}, false
}

func TestDetect_TooFewPoints(t *testing.T) {
	series := dailySeries(29, func(d int) float64 {
		if isWeekend(int64(d)) {
			return 10
		}
		return 500
	})

	a := Detect(series)
	assert.False(t, a.HasSeasonality)
	assert.Equal(t, 1.0, a.AdjustmentFactor)
	assert.Empty(t, a.Patterns)
	assert.Equal(t, 29, a.DataPoints)

	empty := Detect(nil)
	assert.False(t, empty.HasSeasonality)
	assert.Equal(t, 1.0, empty.AdjustmentFactor)
}

func TestDetect_FlatSeries(t *testing.T) {
	a := Detect(dailySeries(90, func(int) float64 { return 42 }))
	assert.False(t, a.HasSeasonality)
	assert.Equal(t, 1.0, a.AdjustmentFactor)
	assert.Equal(t, 0.0, a.Strength)

	zero := Detect(dailySeries(90, func(int) float64 { return 0 }))
	assert.False(t, zero.HasSeasonality)
	assert.Equal(t, 1.0, zero.AdjustmentFactor)
}

func TestIsWeekend_EpochThursday(t *testing.T) {
	for day := int64(0); day < 14; day++ {
		want := time.Unix(day*secondsPerDay, 0).UTC().Weekday()
		assert.Equal(t, want == time.Saturday || want == time.Sunday, isWeekend(day), "day %d", day)
	}
	assert.False(t, isWeekend(0))
	assert.True(t, isWeekend(2))
	assert.True(t, isWeekend(3))
}

// TestDetect_Weekly uses 100/day on weekdays and 50/day on weekends over
// 60 days: 42 weekdays and 18 weekend days, mean 85.
func TestDetect_Weekly(t *testing.T) {
	series := dailySeries(60, func(d int) float64 {
		if isWeekend(int64(d)) {
			return 50
		}
		return 100
	})

	d := NewDetector(Config{Now: fixedClock(0)})
	a := d.Detect(series)

	require.True(t, a.HasSeasonality)
	require.Len(t, a.Patterns, 1, "monthly spread stays under the threshold")

	p := a.Patterns[0]
	assert.Equal(t, KindWeekly, p.Kind)
	assert.Equal(t, 7, p.PeriodDays)
	assert.InDelta(t, 100.0/85, p.PeakMultiplier, 1e-9)
	assert.InDelta(t, 50.0/85, p.TroughMultiplier, 1e-9)
	assert.InDelta(t, 50.0/85, p.Strength, 1e-9)
	assert.Contains(t, p.Description, "weekday")
	assert.Equal(t, p.Strength, a.Strength)

	// phase 0 sits at the trough of the sine wave
	assert.InDelta(t, 1-p.Amplitude(), a.AdjustmentFactor, 1e-9)
	assert.InDelta(t, 85*(1-p.Amplitude()), a.Apply(85), 1e-9)
	assert.Equal(t, 59, a.SpanDays)
}

func TestDetect_Monthly(t *testing.T) {
	series := dailySeries(90, func(d int) float64 {
		if d%30 >= 20 {
			return 200
		}
		return 100
	})

	a := NewDetector(Config{Now: fixedClock(15)}).Detect(series)
	require.True(t, a.HasSeasonality)

	p, ok := findPattern(a, KindMonthly)
	require.True(t, ok)
	assert.Equal(t, 30, p.PeriodDays)
	assert.InDelta(t, 0.75, p.Strength, 1e-9)
	assert.InDelta(t, 1.5, p.PeakMultiplier, 1e-9)
	assert.InDelta(t, 0.75, p.TroughMultiplier, 1e-9)
	assert.Contains(t, p.Description, "late-month")

	_, quarterly := findPattern(a, KindQuarterly)
	assert.False(t, quarterly, "89 days is too short for quarterly detection")
	assert.Greater(t, a.AdjustmentFactor, 1.0, "day 15 is mid-period")
}

func TestDetect_Quarterly(t *testing.T) {
	costFor := func(d int) float64 {
		if (d/30)%3 == 2 {
			return 300
		}
		return 100
	}

	a := NewDetector(Config{Now: fixedClock(0)}).Detect(dailySeries(200, costFor))
	p, ok := findPattern(a, KindQuarterly)
	require.True(t, ok)
	assert.Equal(t, 90, p.PeriodDays)
	assert.Equal(t, 1.0, p.Strength, "strength is capped at 1")
	assert.Contains(t, p.Description, "last-month")

	short := NewDetector(Config{Now: fixedClock(0)}).Detect(dailySeries(150, costFor))
	_, ok = findPattern(short, KindQuarterly)
	assert.False(t, ok)
}

func TestDetect_ThresholdIsConfigurable(t *testing.T) {
	series := dailySeries(60, func(d int) float64 {
		if isWeekend(int64(d)) {
			return 90
		}
		return 100
	})

	assert.False(t, Detect(series).HasSeasonality)

	loose := NewDetector(Config{Threshold: 0.05, Now: fixedClock(0)}).Detect(series)
	p, ok := findPattern(loose, KindWeekly)
	require.True(t, ok)
	assert.Greater(t, p.Strength, 0.05)
}

func TestPattern_MultiplierAt(t *testing.T) {
	p := Pattern{Kind: KindMonthly, PeriodDays: 30, PeakMultiplier: 1.2, TroughMultiplier: 0.8}

	assert.InDelta(t, 0.2, p.Amplitude(), 1e-12)
	assert.InDelta(t, 0.8, p.MultiplierAt(0), 1e-9)
	assert.InDelta(t, 1.2, p.MultiplierAt(15), 1e-9)
	assert.InDelta(t, 1.0, p.MultiplierAt(7), 0.025)
	assert.InDelta(t, p.MultiplierAt(3), p.MultiplierAt(33), 1e-12)
	assert.Equal(t, 0.0, Pattern{}.Phase(12))
}

func TestPatternKind_PeriodDays(t *testing.T) {
	assert.Equal(t, 7, KindWeekly.PeriodDays())
	assert.Equal(t, 30, KindMonthly.PeriodDays())
	assert.Equal(t, 90, KindQuarterly.PeriodDays())
	assert.Equal(t, 365, KindAnnual.PeriodDays())
	assert.Equal(t, 0, KindCustom.PeriodDays())
}
