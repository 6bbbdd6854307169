package montecarlo

import (
	"math"
	"sort"
)

// Shape classifies the skew of a simulated cost distribution.
type Shape string

const (
	ShapeNormal      Shape = "normal"
	ShapeRightSkewed Shape = "right_skewed"
	ShapeLeftSkewed  Shape = "left_skewed"
)

// skewThreshold is the |(mean-median)/stddev| below which a distribution
// counts as symmetric.
const skewThreshold = 0.2

// ReportedPercentiles are the keys of Result.Percentiles.
var ReportedPercentiles = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// HistogramBin is one equal-width bucket of simulated totals.
type HistogramBin struct {
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"`
}

// Result summarizes a simulation run.
type Result struct {
	RunCount    int             `json:"run_count"`
	Seed        uint64          `json:"seed"`
	Mean        float64         `json:"mean_cost"`
	Median      float64         `json:"median_cost"`
	StdDev      float64         `json:"std_dev"`
	Min         float64         `json:"min_cost"`
	Max         float64         `json:"max_cost"`
	Percentiles map[int]float64 `json:"percentiles"`
	VaR95       float64         `json:"var_95"`
	CVaR95      float64         `json:"cvar_95"`
	Histogram   []HistogramBin  `json:"histogram"`
	Shape       Shape           `json:"shape"`

	sorted []float64
}

// Percentile returns the nearest-rank percentile p (1..100) of the run.
func (r *Result) Percentile(p int) float64 {
	return nearestRank(r.sorted, p)
}

// ProbabilityAbove is the fraction of trials whose total exceeded threshold.
func (r *Result) ProbabilityAbove(threshold float64) float64 {
	n := len(r.sorted)
	if n == 0 {
		return 0
	}
	idx := sort.Search(n, func(i int) bool { return r.sorted[i] > threshold })
	return float64(n-idx) / float64(n)
}

func summarize(sorted []float64, seed uint64, bins int) *Result {
	n := len(sorted)
	r := &Result{
		RunCount:    n,
		Seed:        seed,
		Min:         sorted[0],
		Max:         sorted[n-1],
		Percentiles: make(map[int]float64, len(ReportedPercentiles)),
		sorted:      sorted,
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	r.Mean = sum / float64(n)

	if n > 1 {
		var sq float64
		for _, v := range sorted {
			d := v - r.Mean
			sq += d * d
		}
		r.StdDev = math.Sqrt(sq / float64(n-1))
	}

	for _, p := range ReportedPercentiles {
		r.Percentiles[p] = nearestRank(sorted, p)
	}
	r.Median = r.Percentiles[50]

	cutoff := rankIndex(n, 95)
	r.VaR95 = sorted[cutoff]
	var tail float64
	for _, v := range sorted[cutoff:] {
		tail += v
	}
	r.CVaR95 = tail / float64(n-cutoff)

	r.Histogram = histogram(sorted, bins)
	r.Shape = classifyShape(r.Mean, r.Median, r.StdDev)
	return r
}

// rankIndex is the zero-based nearest-rank index of percentile p in n
// sorted values: ceil(p*n/100) - 1, clamped to the slice.
func rankIndex(n, p int) int {
	idx := (p*n+99)/100 - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func nearestRank(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[rankIndex(len(sorted), p)]
}

func histogram(sorted []float64, bins int) []HistogramBin {
	n := len(sorted)
	lo, hi := sorted[0], sorted[n-1]
	if hi == lo {
		return []HistogramBin{{Lower: lo, Upper: hi, Count: n, Frequency: 1}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].Lower = lo + float64(i)*width
		out[i].Upper = lo + float64(i+1)*width
	}
	out[bins-1].Upper = hi

	for _, v := range sorted {
		idx := int((v - lo) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	for i := range out {
		out[i].Frequency = float64(out[i].Count) / float64(n)
	}
	return out
}

// classifyShape compares (mean-median)/stdDev against skewThreshold. A skew of
// exactly +threshold is right skewed and exactly -threshold is left skewed;
// only values strictly inside the band are normal.
func classifyShape(mean, median, stdDev float64) Shape {
	if stdDev == 0 {
		return ShapeNormal
	}
	skew := (mean - median) / stdDev
	switch {
	case math.Abs(skew) < skewThreshold:
		return ShapeNormal
	case skew > 0:
		return ShapeRightSkewed
	default:
		return ShapeLeftSkewed
	}
}
