package xva

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
	"github.com/aristath/exposure/internal/modules/integration"
)

// Fundamentals resolves reduced accumulator statistics by key. Both the
// streaming accumulator set and the batch cache satisfy it.
type Fundamentals interface {
	Reduced(key acc.Key) (*acc.Reduced, error)
}

// Evaluator turns reduced fundamentals into measure values following the
// dispatch table. It holds no path state and is shared by both calculators.
type Evaluator struct {
	grid   domain.DateGrid
	credit domain.CreditContext
}

// NewEvaluator creates an evaluator for one grid and credit context.
func NewEvaluator(grid domain.DateGrid, credit domain.CreditContext) *Evaluator {
	return &Evaluator{grid: grid, credit: credit}
}

// Grid returns the exposure date grid.
func (e *Evaluator) Grid() domain.DateGrid {
	return e.grid
}

// Evaluate computes measure id at date. confidence is only read by quantile measures.
func (e *Evaluator) Evaluate(src Fundamentals, id MeasureID, date time.Time, confidence float64) (float64, error) {
	def, err := Lookup(id)
	if err != nil {
		return 0, err
	}

	if def.Shape == ShapeSum {
		var total float64
		for _, c := range def.Components {
			v, err := e.Evaluate(src, c, date, confidence)
			if err != nil {
				return 0, fmt.Errorf("%s component %s: %w", def.Name, c, err)
			}
			total += v
		}
		return def.Sign * total, nil
	}

	values, err := e.Profile(src, def, confidence)
	if err != nil {
		return 0, err
	}
	p := integration.NewProfile(e.grid, values)

	v, err := e.shape(src, def, p, date)
	if err != nil {
		return 0, err
	}
	return def.Sign * v, nil
}

// Profile returns the per-date values the measure is built from, before any
// shape or sign is applied.
func (e *Evaluator) Profile(src Fundamentals, def Definition, confidence float64) ([]float64, error) {
	r, err := src.Reduced(def.Primary)
	if err != nil {
		return nil, err
	}

	var values []float64
	switch def.Statistic {
	case StatMean, StatSigma:
		values = append([]float64(nil), r.Values...)
	case StatStdErr:
		values = append([]float64(nil), r.StdErr...)
	case StatQuantile:
		values, err = r.Quantiles(confidence)
	case StatCollateralQuantile:
		values, err = r.CollateralQuantiles(confidence)
	default:
		return nil, fmt.Errorf("%w: statistic %d", ErrMeasureNotSupported, def.Statistic)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Name, err)
	}

	// tail measures with an auxiliary mean report the excess over the mean
	if def.Auxiliary != nil && def.Shape != ShapeRWA {
		aux, err := src.Reduced(*def.Auxiliary)
		if err != nil {
			return nil, err
		}
		for d := range values {
			values[d] -= aux.Values[d]
		}
	}
	return values, nil
}

func (e *Evaluator) shape(src Fundamentals, def Definition, p integration.Profile, date time.Time) (float64, error) {
	grid := e.grid
	switch def.Shape {
	case ShapeProfile:
		return integration.Interpolate(p, date), nil

	case ShapePeak:
		peak := 0.0
		for _, v := range p.Values {
			peak = math.Max(peak, v)
		}
		return peak, nil

	case ShapeIntegral, ShapeTheta, ShapeBucket:
		k, ok := e.credit.Kernel(def.Kernel)
		if !ok {
			// missing default information degrades the measure to 0
			return 0, nil
		}
		r := def.Recovery.Rate(e.credit)
		switch def.Shape {
		case ShapeIntegral:
			return integration.Integrate(p, grid.AsOf, grid.Last(), k, r), nil
		case ShapeTheta:
			return integration.IntegrateTheta(p, grid.AsOf, date, k, r), nil
		default:
			return integration.IntegrateBucket(p, grid, date, k, r), nil
		}

	case ShapeRunningMax:
		return integration.RunningMax(p, date), nil

	case ShapeTimeAverage:
		return integration.TimeAverage(p.At, grid, date), nil

	case ShapeEffectiveEPE:
		return integration.EffectiveEPE(p), nil

	case ShapeEffectiveMaturity:
		return integration.EffectiveMaturity(p), nil

	case ShapeCapital:
		return e.capital(p), nil

	case ShapeRWA:
		aux, err := src.Reduced(*def.Auxiliary)
		if err != nil {
			return 0, err
		}
		k := e.capital(integration.NewProfile(grid, aux.Values))
		return integration.RiskWeightedAssets(integration.EffectiveEPE(p), k), nil
	}
	return 0, fmt.Errorf("%w: shape %d", ErrMeasureNotSupported, def.Shape)
}

// capital evaluates the IRB charge per unit exposure with the effective
// maturity of maturityProfile. PD is the counterparty kernel mass over the
// first year.
func (e *Evaluator) capital(maturityProfile integration.Profile) float64 {
	k, ok := e.credit.Kernel(domain.KernelCounterpartyDefault)
	if !ok {
		return 0
	}
	asOf := e.grid.AsOf
	pd := integration.DefaultProbability(k, asOf, asOf.AddDate(1, 0, 0))
	lgd := 1 - e.credit.CounterpartyRecovery
	m := math.Min(integration.EffectiveMaturity(maturityProfile), integration.MaturityCeiling)
	return integration.CapitalRequirement(pd, lgd, m)
}
