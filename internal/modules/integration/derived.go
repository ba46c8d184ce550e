package integration

import (
	"math"
	"time"

	"github.com/aristath/exposure/internal/domain"
)

// Effective maturity bounds used by the IRB formula.
const (
	MaturityFloor   = 1.0
	MaturityCeiling = 5.0
)

// RunningMax returns the maximum of p over the exposure dates strictly before
// date together with the interpolated value at date, floored at 0.
func RunningMax(p Profile, date time.Time) float64 {
	m := 0.0
	for i, t := range p.Grid.Dates {
		if !t.Before(date) {
			break
		}
		m = math.Max(m, p.Values[i])
	}
	return math.Max(m, Interpolate(p, date))
}

// TimeAverage returns the time-weighted average of f from asOf to date. Every
// exposure date in (asOf, date) closes a segment weighted by its year fraction
// with f evaluated at the segment end, and the last partial segment ends at
// date itself.
func TimeAverage(f Function, grid domain.DateGrid, date time.Time) float64 {
	elapsed := Years(grid.AsOf, date)
	if elapsed <= elapsedFloor {
		return 0
	}
	var sum float64
	prev := grid.AsOf
	for _, t := range grid.Dates {
		if !t.After(prev) {
			continue
		}
		if !t.Before(date) {
			break
		}
		sum += f(t) * Years(prev, t)
		prev = t
	}
	sum += f(date) * Years(prev, date)
	return sum / elapsed
}

// EffectiveMaturity computes the Basel effective maturity of an exposure
// profile:
//
//	1 + (TA(f, Tn) * Years(asOf, Tn) - TA(f, asOf+1y)) / TA(RunningMax(f), asOf+1y)
//
// It returns MaturityFloor when numerator and denominator both vanish and
// MaturityCeiling when the denominator is not positive. The result is not
// clipped and can exceed MaturityCeiling for back-loaded profiles; capital
// callers cap it at MaturityCeiling.
func EffectiveMaturity(p Profile) float64 {
	grid := p.Grid
	if grid.Len() == 0 {
		return MaturityFloor
	}
	oneYear := grid.AsOf.AddDate(1, 0, 0)
	horizon := grid.Last()

	numerator := TimeAverage(p.At, grid, horizon)*Years(grid.AsOf, horizon) -
		TimeAverage(p.At, grid, oneYear)
	denominator := TimeAverage(func(t time.Time) float64 {
		return RunningMax(p, t)
	}, grid, oneYear)

	if math.Abs(numerator) < elapsedFloor && math.Abs(denominator) < elapsedFloor {
		return MaturityFloor
	}
	if denominator <= 0 {
		return MaturityCeiling
	}
	return 1 + numerator/denominator
}

// EffectiveEPE is the one-year time average of the running maximum of p.
func EffectiveEPE(p Profile) float64 {
	return TimeAverage(func(t time.Time) float64 {
		return RunningMax(p, t)
	}, p.Grid, p.Grid.AsOf.AddDate(1, 0, 0))
}
