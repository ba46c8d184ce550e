package accumulation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Sample is one (exposure, collateral, weight) observation of a distribution accumulator.
type Sample struct {
	_msgpack struct{} `msgpack:",as_array"`

	Value      float64
	Collateral float64
	Weight     float64
}

// Distribution is a reduced empirical distribution: a right-continuous step CDF
// with knots (Values[i], CDF[i]), values strictly increasing.
type Distribution struct {
	Values []float64
	CDF    []float64
	// MinConfidence is the lowest probability the distribution can answer. Knots
	// below it were dropped at reduction.
	MinConfidence float64
}

// degenerateDistribution is the point mass at 0 used when no path carried weight.
func degenerateDistribution() Distribution {
	return Distribution{Values: []float64{0}, CDF: []float64{1}}
}

type point struct {
	value  float64
	weight float64
}

// newDistribution builds the step CDF from positive-valued points. mass is the
// total weight of the points and norm the total weight of all paths; the gap is
// placed on a point at zero.
func newDistribution(points []point, mass, norm, minConfidence float64) Distribution {
	if norm <= 0 {
		d := degenerateDistribution()
		d.MinConfidence = minConfidence
		return d
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].value < points[j].value
	})

	values := make([]float64, 0, len(points)+1)
	weights := make([]float64, 0, len(points)+1)

	if gap := norm - mass; gap > zeroMassTolerance*norm {
		values = append(values, 0)
		weights = append(weights, gap)
	}
	for _, pt := range points {
		last := len(values) - 1
		if last >= 0 && values[last] == pt.value {
			weights[last] += pt.weight
			continue
		}
		values = append(values, pt.value)
		weights = append(weights, pt.weight)
	}
	if len(values) == 0 {
		d := degenerateDistribution()
		d.MinConfidence = minConfidence
		return d
	}

	floats.Scale(1/norm, weights)
	cdf := floats.CumSum(make([]float64, len(weights)), weights)

	if minConfidence > 0 {
		start := sort.SearchFloat64s(cdf, minConfidence)
		if start >= len(cdf) {
			start = len(cdf) - 1
		}
		values = values[start:]
		cdf = cdf[start:]
	}

	return Distribution{Values: values, CDF: cdf, MinConfidence: minConfidence}
}

// zeroMassTolerance keeps summation noise between Mass and Norm from creating a
// spurious point at zero.
const zeroMassTolerance = 1e-12

// Quantile returns the smallest knot value whose cumulative probability is >= p.
func (d Distribution) Quantile(p float64) (float64, error) {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfidence, p)
	}
	if p < d.MinConfidence {
		return 0, fmt.Errorf("%w: requested %v, accumulated from %v", ErrConfidenceBelowMinimum, p, d.MinConfidence)
	}
	if len(d.Values) == 0 {
		return 0, nil
	}
	i := sort.SearchFloat64s(d.CDF, p)
	if i >= len(d.Values) {
		i = len(d.Values) - 1
	}
	return d.Values[i], nil
}
