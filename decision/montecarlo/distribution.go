package montecarlo

import (
	"encoding/json"
	"fmt"
	"math"

	riskerrors "costrisk/pkg/errors"
)

// DistributionKind names a distribution variant.
type DistributionKind string

const (
	KindNormal     DistributionKind = "normal"
	KindLogNormal  DistributionKind = "log_normal"
	KindUniform    DistributionKind = "uniform"
	KindTriangular DistributionKind = "triangular"
)

// Distribution is a closed set of sampling shapes, each parameterized by
// ratios relative to an input's base value. Only this package implements it.
type Distribution interface {
	Kind() DistributionKind
	sample(rng *lcg, base float64) float64
	validate() error
}

// Normal samples base ± base×StdDevRatio.
type Normal struct {
	StdDevRatio float64 `json:"std_dev_ratio"`
}

// LogNormal samples exp(ln(base) + Sigma×z).
type LogNormal struct {
	Sigma float64 `json:"sigma"`
}

// Uniform samples evenly in [base×MinRatio, base×MaxRatio].
type Uniform struct {
	MinRatio float64 `json:"min_ratio"`
	MaxRatio float64 `json:"max_ratio"`
}

// Triangular samples in [base×MinRatio, base×MaxRatio] with mode at base.
type Triangular struct {
	MinRatio float64 `json:"min_ratio"`
	MaxRatio float64 `json:"max_ratio"`
}

func (Normal) Kind() DistributionKind     { return KindNormal }
func (LogNormal) Kind() DistributionKind  { return KindLogNormal }
func (Uniform) Kind() DistributionKind    { return KindUniform }
func (Triangular) Kind() DistributionKind { return KindTriangular }

func (d Normal) sample(rng *lcg, base float64) float64 {
	return base + rng.standardNormal()*base*d.StdDevRatio
}

func (d LogNormal) sample(rng *lcg, base float64) float64 {
	z := rng.standardNormal()
	if base <= 0 {
		return 0
	}
	return math.Exp(math.Log(base) + d.Sigma*z)
}

func (d Uniform) sample(rng *lcg, base float64) float64 {
	u := rng.float64()
	return base * (d.MinRatio + u*(d.MaxRatio-d.MinRatio))
}

func (d Triangular) sample(rng *lcg, base float64) float64 {
	u := rng.float64()
	lo, mode, hi := base*d.MinRatio, base, base*d.MaxRatio
	if lo > hi {
		lo, hi = hi, lo
	}
	width := hi - lo
	if width == 0 {
		return mode
	}

	split := (mode - lo) / width
	if u < split {
		return lo + math.Sqrt(u*width*(mode-lo))
	}
	return hi - math.Sqrt((1-u)*width*(hi-mode))
}

func (d Normal) validate() error {
	if d.StdDevRatio < 0 {
		return invalidDistribution("normal std_dev_ratio must be non-negative, got %v", d.StdDevRatio)
	}
	return nil
}

func (d LogNormal) validate() error {
	if d.Sigma < 0 {
		return invalidDistribution("log-normal sigma must be non-negative, got %v", d.Sigma)
	}
	return nil
}

func (d Uniform) validate() error {
	if d.MaxRatio < d.MinRatio {
		return invalidDistribution("uniform max_ratio %v is below min_ratio %v", d.MaxRatio, d.MinRatio)
	}
	return nil
}

func (d Triangular) validate() error {
	if d.MinRatio > 1 || d.MaxRatio < 1 {
		return invalidDistribution("triangular ratios must bracket the mode: min %v, max %v", d.MinRatio, d.MaxRatio)
	}
	return nil
}

func invalidDistribution(format string, args ...interface{}) error {
	return riskerrors.NewValidationError(riskerrors.ErrCodeInvalidDistribution, fmt.Sprintf(format, args...))
}

// =============================================================================
// INPUTS
// =============================================================================

// UncertaintyInput is one uncertain cost factor.
type UncertaintyInput struct {
	Name         string       `json:"name"`
	BaseValue    float64      `json:"base_value"`
	Distribution Distribution `json:"distribution"`
	Weight       float64      `json:"weight"`
}

type distributionJSON struct {
	Kind        DistributionKind `json:"kind"`
	StdDevRatio float64          `json:"std_dev_ratio,omitempty"`
	Sigma       float64          `json:"sigma,omitempty"`
	MinRatio    float64          `json:"min_ratio,omitempty"`
	MaxRatio    float64          `json:"max_ratio,omitempty"`
}

type inputJSON struct {
	Name         string           `json:"name"`
	BaseValue    float64          `json:"base_value"`
	Distribution distributionJSON `json:"distribution"`
	Weight       *float64         `json:"weight,omitempty"`
}

// MarshalJSON writes the distribution as a tagged object.
func (in UncertaintyInput) MarshalJSON() ([]byte, error) {
	out := inputJSON{Name: in.Name, BaseValue: in.BaseValue, Weight: &in.Weight}
	switch d := in.Distribution.(type) {
	case Normal:
		out.Distribution = distributionJSON{Kind: KindNormal, StdDevRatio: d.StdDevRatio}
	case LogNormal:
		out.Distribution = distributionJSON{Kind: KindLogNormal, Sigma: d.Sigma}
	case Uniform:
		out.Distribution = distributionJSON{Kind: KindUniform, MinRatio: d.MinRatio, MaxRatio: d.MaxRatio}
	case Triangular:
		out.Distribution = distributionJSON{Kind: KindTriangular, MinRatio: d.MinRatio, MaxRatio: d.MaxRatio}
	case nil:
		return nil, fmt.Errorf("input %q has no distribution", in.Name)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a tagged distribution. Weight defaults to 1.
func (in *UncertaintyInput) UnmarshalJSON(data []byte) error {
	var raw inputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	in.Name = raw.Name
	in.BaseValue = raw.BaseValue
	in.Weight = 1
	if raw.Weight != nil {
		in.Weight = *raw.Weight
	}

	d := raw.Distribution
	switch d.Kind {
	case KindNormal:
		in.Distribution = Normal{StdDevRatio: d.StdDevRatio}
	case KindLogNormal:
		in.Distribution = LogNormal{Sigma: d.Sigma}
	case KindUniform:
		in.Distribution = Uniform{MinRatio: d.MinRatio, MaxRatio: d.MaxRatio}
	case KindTriangular:
		in.Distribution = Triangular{MinRatio: d.MinRatio, MaxRatio: d.MaxRatio}
	default:
		return fmt.Errorf("input %q: unknown distribution kind %q", raw.Name, d.Kind)
	}
	return nil
}

func (in UncertaintyInput) validate() error {
	if in.Weight < 0 {
		return riskerrors.NewValidationError(riskerrors.ErrCodeNegativeWeight,
			fmt.Sprintf("input %q has negative weight %v", in.Name, in.Weight))
	}
	if in.Distribution == nil {
		return invalidDistribution("input %q has no distribution", in.Name)
	}
	return in.Distribution.validate()
}
