package montecarlo

import "math"

// LCG parameters (Knuth MMIX). The modulus is 2^64, applied by uint64
// overflow. Changing any of these changes every simulation result.
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// lcg is a linear congruential generator. Each trial owns one.
type lcg struct {
	state uint64
}

// newTrialRNG derives the generator for one trial from the run seed.
func newTrialRNG(seed uint64, trial int) *lcg {
	return &lcg{state: seed + uint64(trial)}
}

func (g *lcg) next() uint64 {
	g.state = g.state*lcgMultiplier + lcgIncrement
	return g.state
}

// float64 returns a uniform draw in [0, 1) from the top 53 bits.
func (g *lcg) float64() float64 {
	return float64(g.next()>>11) / (1 << 53)
}

// standardNormal draws N(0,1) with the Box-Muller transform.
func (g *lcg) standardNormal() float64 {
	u1 := g.float64()
	u2 := g.float64()
	if u1 < math.SmallestNonzeroFloat64 {
		u1 = math.SmallestNonzeroFloat64
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
