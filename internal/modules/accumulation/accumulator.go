package accumulation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/exposure/internal/domain"
)

// SigmaFloor is the standard deviation below which a reduced sigma is reported as 0.
const SigmaFloor = 1e-5

// ratioState is the {WeightedExposure, Norm} pair of a ratio-type expectation.
type ratioState struct {
	WeightedExposure []float64 `msgpack:"we"`
	Norm             []float64 `msgpack:"norm"`
}

func newRatioState(dates int) *ratioState {
	return &ratioState{
		WeightedExposure: make([]float64, dates),
		Norm:             make([]float64, dates),
	}
}

func (s *ratioState) add(d int, w, df, x float64, discounted bool) {
	s.WeightedExposure[d] += w * df * x
	if discounted {
		s.Norm[d] += w
	} else {
		s.Norm[d] += w * df
	}
}

func (s *ratioState) merge(o *ratioState) {
	floats.Add(s.WeightedExposure, o.WeightedExposure)
	floats.Add(s.Norm, o.Norm)
}

func (s *ratioState) reduce() []float64 {
	out := make([]float64, len(s.Norm))
	for d, n := range s.Norm {
		if n > 0 {
			out[d] = s.WeightedExposure[d] / n
		}
	}
	return out
}

type varianceState struct {
	WeightedExposure        []float64 `msgpack:"we"`
	WeightedExposureSquared []float64 `msgpack:"we2"`
	Norm                    []float64 `msgpack:"norm"`
	Count                   []float64 `msgpack:"count"`
}

func newVarianceState(dates int) *varianceState {
	return &varianceState{
		WeightedExposure:        make([]float64, dates),
		WeightedExposureSquared: make([]float64, dates),
		Norm:                    make([]float64, dates),
		Count:                   make([]float64, dates),
	}
}

func (s *varianceState) add(d int, w, df, x float64, discounted bool) {
	s.WeightedExposure[d] += w * df * x
	if discounted {
		s.WeightedExposureSquared[d] += w * df * df * x * x
		s.Norm[d] += w
	} else {
		s.WeightedExposureSquared[d] += w * df * x * x
		s.Norm[d] += w * df
	}
	if w != 0 {
		s.Count[d]++
	}
}

func (s *varianceState) merge(o *varianceState) {
	floats.Add(s.WeightedExposure, o.WeightedExposure)
	floats.Add(s.WeightedExposureSquared, o.WeightedExposureSquared)
	floats.Add(s.Norm, o.Norm)
	floats.Add(s.Count, o.Count)
}

func (s *varianceState) reduce() (sigma, stdErr []float64) {
	sigma = make([]float64, len(s.Norm))
	stdErr = make([]float64, len(s.Norm))
	for d, n := range s.Norm {
		if n <= 0 {
			continue
		}
		mean := s.WeightedExposure[d] / n
		second := s.WeightedExposureSquared[d] / n
		v := math.Sqrt(math.Max(second-mean*mean, 0))
		if v < SigmaFloor {
			continue
		}
		sigma[d] = v
		if s.Count[d] > 0 {
			stdErr[d] = v / math.Sqrt(s.Count[d])
		}
	}
	return sigma, stdErr
}

type distributionState struct {
	Samples [][]Sample `msgpack:"samples"`
	Mass    []float64  `msgpack:"mass"`
	Norm    []float64  `msgpack:"norm"`
}

func newDistributionState(dates int) *distributionState {
	return &distributionState{
		Samples: make([][]Sample, dates),
		Mass:    make([]float64, dates),
		Norm:    make([]float64, dates),
	}
}

func (s *distributionState) add(d int, w, df, x, c float64, discounted bool) {
	if w <= 0 {
		return
	}
	if discounted {
		x *= df
		c *= df
	} else {
		w *= df
	}
	s.Norm[d] += w
	if x > 0 {
		s.Samples[d] = append(s.Samples[d], Sample{Value: x, Collateral: c, Weight: w})
		s.Mass[d] += w
	}
}

func (s *distributionState) merge(o *distributionState) {
	for d := range s.Samples {
		s.Samples[d] = append(s.Samples[d], o.Samples[d]...)
	}
	floats.Add(s.Mass, o.Mass)
	floats.Add(s.Norm, o.Norm)
}

func (s *distributionState) reduce(minConfidence float64) (exposure, collateral []Distribution) {
	exposure = make([]Distribution, len(s.Norm))
	collateral = make([]Distribution, len(s.Norm))
	for d, samples := range s.Samples {
		points := make([]point, len(samples))
		var collateralPoints []point
		var collateralMass float64
		for i, smp := range samples {
			points[i] = point{value: smp.Value, weight: smp.Weight}
			if smp.Collateral > 0 {
				collateralPoints = append(collateralPoints, point{value: smp.Collateral, weight: smp.Weight})
				collateralMass += smp.Weight
			}
		}
		exposure[d] = newDistribution(points, s.Mass[d], s.Norm[d], minConfidence)
		collateral[d] = newDistribution(collateralPoints, collateralMass, s.Norm[d], minConfidence)
	}
	return exposure, collateral
}

// productState tracks an exposure average and a spread average side by side.
// The spread average is always taken under the discount-weighted normalizer.
type productState struct {
	Exposure ratioState `msgpack:"exposure"`
	Spread   ratioState `msgpack:"spread"`
}

func newProductState(dates int) *productState {
	return &productState{
		Exposure: *newRatioState(dates),
		Spread:   *newRatioState(dates),
	}
}

func (s *productState) merge(o *productState) {
	s.Exposure.merge(&o.Exposure)
	s.Spread.merge(&o.Spread)
}

func (s *productState) reduce() []float64 {
	e := s.Exposure.reduce()
	floats.Mul(e, s.Spread.reduce())
	return e
}

// Accumulator is a closed tagged variant over the four accumulator kinds.
// Exactly one of the state pointers matching key.Kind is non-nil until reduction.
type Accumulator struct {
	key           Key
	minConfidence float64

	ratio        *ratioState
	variance     *varianceState
	distribution *distributionState
	product      *productState
}

func newAccumulator(key Key, dates int) (*Accumulator, error) {
	a := &Accumulator{key: key}
	switch key.Kind {
	case KindRatio:
		a.ratio = newRatioState(dates)
	case KindVariance:
		a.variance = newVarianceState(dates)
	case KindDistribution:
		a.distribution = newDistributionState(dates)
	case KindSpreadProduct:
		a.product = newProductState(dates)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFundamental, key)
	}
	return a, nil
}

// Key returns the accumulator identity.
func (a *Accumulator) Key() Key {
	return a.key
}

func (a *Accumulator) add(p *domain.PathSample, d int, e domain.Exposure) {
	k := a.key
	w := p.Weight * k.Weighting.Apply(p, d)
	df := p.DiscountFactor[d]

	switch k.Kind {
	case KindRatio:
		a.ratio.add(d, w, df, k.Side.Value(e)*k.Spread.Value(p, d), k.Discounted)
	case KindVariance:
		a.variance.add(d, w, df, k.Side.Value(e)*k.Spread.Value(p, d), k.Discounted)
	case KindDistribution:
		a.distribution.add(d, w, df, k.Side.Magnitude(e), k.Side.Collateral(e), k.Discounted)
	case KindSpreadProduct:
		a.product.Exposure.add(d, w, df, k.Side.Value(e), k.Discounted)
		a.product.Spread.add(d, w, df, k.Spread.Value(p, d), false)
	}
}

func (a *Accumulator) merge(o *Accumulator) {
	switch a.key.Kind {
	case KindRatio:
		a.ratio.merge(o.ratio)
	case KindVariance:
		a.variance.merge(o.variance)
	case KindDistribution:
		a.distribution.merge(o.distribution)
	case KindSpreadProduct:
		a.product.merge(o.product)
	}
	a.minConfidence = math.Min(a.minConfidence, o.minConfidence)
}

// reduce produces the reduced statistics and releases the raw state.
func (a *Accumulator) reduce() *Reduced {
	r := &Reduced{Key: a.key}
	switch a.key.Kind {
	case KindRatio:
		r.Values = a.ratio.reduce()
	case KindVariance:
		r.Values, r.StdErr = a.variance.reduce()
	case KindDistribution:
		r.Exposure, r.Collateral = a.distribution.reduce(a.minConfidence)
	case KindSpreadProduct:
		r.Values = a.product.reduce()
	}
	a.ratio, a.variance, a.distribution, a.product = nil, nil, nil, nil
	return r
}

// Reduced is the per-date output of one accumulator.
type Reduced struct {
	Key Key
	// Values holds the expectation (ratio, spread product) or sigma (variance).
	Values []float64
	// StdErr is sigma / sqrt(paths) for variance accumulators.
	StdErr []float64
	// Exposure and Collateral hold per-date empirical distributions.
	Exposure   []Distribution
	Collateral []Distribution
}

// Quantiles evaluates the exposure distribution of every date at p.
func (r *Reduced) Quantiles(p float64) ([]float64, error) {
	return quantiles(r.Exposure, p)
}

// CollateralQuantiles evaluates the collateral distribution of every date at p.
func (r *Reduced) CollateralQuantiles(p float64) ([]float64, error) {
	return quantiles(r.Collateral, p)
}

func quantiles(dists []Distribution, p float64) ([]float64, error) {
	out := make([]float64, len(dists))
	for d, dist := range dists {
		q, err := dist.Quantile(p)
		if err != nil {
			return nil, err
		}
		out[d] = q
	}
	return out, nil
}
