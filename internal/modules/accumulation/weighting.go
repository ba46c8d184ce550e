// Package accumulation holds the per-exposure-date sufficient statistics that are
// built path by path and merged across shards before a single reduction.
package accumulation

import (
	"fmt"
	"math"

	"github.com/aristath/exposure/internal/domain"
)

// Weighting is a measure-change function mapping (path, date) to a Radon-Nikodym weight.
type Weighting uint8

const (
	// ZeroRn applies only the base derivative (no wrong-way risk).
	ZeroRn Weighting = iota
	// CptyRn conditions on counterparty default.
	CptyRn
	// OwnRn conditions on own default.
	OwnRn
	// FundingRn conditions on joint survival.
	FundingRn
)

// Apply returns the weight of path p at date index d.
func (w Weighting) Apply(p *domain.PathSample, d int) float64 {
	switch w {
	case CptyRn:
		return p.RN[d] * p.RNCpty[d]
	case OwnRn:
		return p.RN[d] * p.RNOwn[d]
	case FundingRn:
		return p.RN[d] * p.RNSurvival[d]
	default:
		return p.RN[d]
	}
}

func (w Weighting) String() string {
	switch w {
	case ZeroRn:
		return "zero_rn"
	case CptyRn:
		return "cpty_rn"
	case OwnRn:
		return "own_rn"
	case FundingRn:
		return "funding_rn"
	}
	return fmt.Sprintf("weighting(%d)", uint8(w))
}

// Side selects which component of the netted exposure is accumulated.
type Side uint8

const (
	PositiveExposure Side = iota
	NegativeExposure
	PositiveCollateral
	NegativeCollateral
)

// Value returns the signed exposure component.
func (s Side) Value(e domain.Exposure) float64 {
	switch s {
	case NegativeExposure:
		return e.Negative
	case PositiveCollateral:
		return e.PositiveCollateral
	case NegativeCollateral:
		return e.NegativeCollateral
	default:
		return e.Positive
	}
}

// Magnitude returns the absolute exposure component. Distributions are built on
// magnitudes so negative-exposure quantiles are taken on |NE|.
func (s Side) Magnitude(e domain.Exposure) float64 {
	return math.Abs(s.Value(e))
}

// Collateral returns the collateral carried alongside the exposure of this side.
func (s Side) Collateral(e domain.Exposure) float64 {
	switch s {
	case NegativeExposure, NegativeCollateral:
		return math.Abs(e.NegativeCollateral)
	default:
		return math.Abs(e.PositiveCollateral)
	}
}

func (s Side) String() string {
	switch s {
	case PositiveExposure:
		return "positive_exposure"
	case NegativeExposure:
		return "negative_exposure"
	case PositiveCollateral:
		return "positive_collateral"
	case NegativeCollateral:
		return "negative_collateral"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// Spread selects a funding-spread stream multiplied into the exposure.
type Spread uint8

const (
	NoSpread Spread = iota
	BorrowSpread
	LendSpread
	OwnSpread
)

// Value returns the spread of path p at date index d; NoSpread is 1.
func (s Spread) Value(p *domain.PathSample, d int) float64 {
	switch s {
	case BorrowSpread:
		return p.BorrowSpread[d]
	case LendSpread:
		return p.LendSpread[d]
	case OwnSpread:
		return p.OwnSpread[d]
	default:
		return 1
	}
}

func (s Spread) String() string {
	switch s {
	case NoSpread:
		return "none"
	case BorrowSpread:
		return "borrow"
	case LendSpread:
		return "lend"
	case OwnSpread:
		return "own"
	}
	return fmt.Sprintf("spread(%d)", uint8(s))
}

// Kind tags the accumulator variant.
type Kind uint8

const (
	// KindRatio reduces to WeightedExposure / Norm.
	KindRatio Kind = iota
	// KindVariance adds the second moment and reduces to a standard deviation.
	KindVariance
	// KindDistribution collects (value, weight) samples and reduces to an empirical CDF.
	KindDistribution
	// KindSpreadProduct keeps separate exposure and spread averages and multiplies them.
	KindSpreadProduct
)

func (k Kind) String() string {
	switch k {
	case KindRatio:
		return "ratio"
	case KindVariance:
		return "variance"
	case KindDistribution:
		return "distribution"
	case KindSpreadProduct:
		return "spread_product"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Key identifies a fundamental accumulator. Two measures that need the same Key
// share one accumulator.
type Key struct {
	Kind       Kind
	Side       Side
	Weighting  Weighting
	Discounted bool
	Spread     Spread
}

func (k Key) String() string {
	disc := "undiscounted"
	if k.Discounted {
		disc = "discounted"
	}
	s := fmt.Sprintf("%s/%s/%s/%s", k.Kind, k.Side, k.Weighting, disc)
	if k.Spread != NoSpread {
		s += "/" + k.Spread.String()
	}
	return s
}
