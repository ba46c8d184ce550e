// Package xva maps named risk measures onto fundamental accumulators and
// integration rules, and exposes the batch and streaming calculators that
// answer measure queries from the same dispatch table.
package xva

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
)

var (
	// ErrMeasureNotSupported is returned for identifiers outside the dispatch table.
	ErrMeasureNotSupported = errors.New("measure not supported")
	// ErrMeasureNotRegistered is returned when a streaming query names a
	// measure that was never registered.
	ErrMeasureNotRegistered = errors.New("measure not registered")
)

// MeasureID identifies a named risk measure.
type MeasureID int

const (
	EE MeasureID = iota
	EEUndiscounted
	NEE
	NEEUndiscounted
	EECounterparty
	NEEOwn
	ExpectedCollateral
	ExpectedNegativeCollateral

	EESigma
	EEStdErr
	NEESigma
	NEEStdErr

	PFE
	PFEDiscounted
	PFNE
	PFNEDiscounted
	CollateralPFE
	PeakPFE

	EPE
	ENE
	EEE
	EEPE

	CVA
	CVANoWWR
	DVA
	DVANoWWR
	BCVA
	FCA
	FCANoDefault
	FCAIndependent
	FBA
	FBANoDefault
	FBAIndependent
	FVA
	FVANoDefault
	FVAIndependent
	CVAStdErr
	DVAStdErr

	EC
	ECDiscounted
	ECNoWWR

	CVATheta
	DVATheta
	FCATheta
	FBATheta
	FVATheta

	CVABucket
	DVABucket

	EffectiveMaturity
	CapitalRequirement
	RWA

	measureCount
)

// Statistic selects which reduced quantity of the primary fundamental is read.
type Statistic uint8

const (
	StatMean Statistic = iota
	StatSigma
	StatStdErr
	StatQuantile
	StatCollateralQuantile
)

// Shape selects how the per-date profile becomes the measure value.
type Shape uint8

const (
	// ShapeProfile interpolates the profile at the query date.
	ShapeProfile Shape = iota
	// ShapePeak is the maximum of the profile over all exposure dates.
	ShapePeak
	// ShapeIntegral integrates against the kernel from asOf to the last exposure date.
	ShapeIntegral
	// ShapeTheta integrates from asOf to the query date.
	ShapeTheta
	// ShapeBucket integrates over the exposure bucket containing the query date.
	ShapeBucket
	ShapeRunningMax
	ShapeTimeAverage
	ShapeEffectiveEPE
	ShapeEffectiveMaturity
	ShapeCapital
	ShapeRWA
	// ShapeSum adds the values of the component measures.
	ShapeSum
)

// Recovery selects the recovery rate applied by integral shapes.
type Recovery uint8

const (
	RecoveryNone Recovery = iota
	RecoveryCounterparty
	RecoveryOwn
)

// Rate returns the recovery rate of c selected by r.
func (r Recovery) Rate(c domain.CreditContext) float64 {
	switch r {
	case RecoveryCounterparty:
		return c.CounterpartyRecovery
	case RecoveryOwn:
		return c.OwnRecovery
	default:
		return 0
	}
}

// Definition is one row of the dispatch table.
type Definition struct {
	ID        MeasureID
	Name      string
	Primary   acc.Key
	Auxiliary *acc.Key
	Statistic Statistic
	Shape     Shape
	Kernel    domain.KernelIndex
	Recovery  Recovery
	Sign      float64
	// Components lists the summands of ShapeSum measures.
	Components []MeasureID
	// Note is shown next to the measure in listings.
	Note string
}

// Fundamentals returns the accumulator keys the measure reads, including
// those of its components, without duplicates.
func (d Definition) Fundamentals() []acc.Key {
	seen := make(map[acc.Key]bool)
	var out []acc.Key
	var walk func(d Definition)
	walk = func(d Definition) {
		if d.Shape == ShapeSum {
			for _, c := range d.Components {
				walk(definitions[c])
			}
			return
		}
		keys := []acc.Key{d.Primary}
		if d.Auxiliary != nil {
			keys = append(keys, *d.Auxiliary)
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	walk(d)
	return out
}

// NeedsConfidence reports whether the measure is a quantile of a distribution.
func (d Definition) NeedsConfidence() bool {
	return d.Statistic == StatQuantile || d.Statistic == StatCollateralQuantile
}

func ratio(side acc.Side, w acc.Weighting, discounted bool) acc.Key {
	return acc.Key{Kind: acc.KindRatio, Side: side, Weighting: w, Discounted: discounted}
}

func variance(side acc.Side, w acc.Weighting) acc.Key {
	return acc.Key{Kind: acc.KindVariance, Side: side, Weighting: w, Discounted: true}
}

func distribution(side acc.Side, w acc.Weighting, discounted bool) acc.Key {
	return acc.Key{Kind: acc.KindDistribution, Side: side, Weighting: w, Discounted: discounted}
}

func funded(kind acc.Kind, side acc.Side, w acc.Weighting, s acc.Spread) acc.Key {
	return acc.Key{Kind: kind, Side: side, Weighting: w, Discounted: true, Spread: s}
}

func keyRef(k acc.Key) *acc.Key {
	return &k
}

const (
	cptyKernel     = domain.KernelCounterpartyDefault
	ownKernel      = domain.KernelOwnDefault
	survivalKernel = domain.KernelJointSurvival
	noDefault      = domain.KernelNoDefault
)

var (
	eeKey       = ratio(acc.PositiveExposure, acc.ZeroRn, true)
	eeUndiscKey = ratio(acc.PositiveExposure, acc.ZeroRn, false)
	neeKey      = ratio(acc.NegativeExposure, acc.ZeroRn, true)
	neeUndisc   = ratio(acc.NegativeExposure, acc.ZeroRn, false)
	eeCptyKey   = ratio(acc.PositiveExposure, acc.CptyRn, true)
	neeOwnKey   = ratio(acc.NegativeExposure, acc.OwnRn, true)
	pfeKey      = distribution(acc.PositiveExposure, acc.ZeroRn, false)
	pfneKey     = distribution(acc.NegativeExposure, acc.ZeroRn, false)
	fcaKey      = funded(acc.KindRatio, acc.PositiveExposure, acc.FundingRn, acc.BorrowSpread)
	fbaKey      = funded(acc.KindRatio, acc.NegativeExposure, acc.FundingRn, acc.LendSpread)
)

// definitions is indexed by MeasureID.
var definitions = [measureCount]Definition{
	EE:                         {Name: "EE", Primary: eeKey, Sign: 1},
	EEUndiscounted:             {Name: "EEUndiscounted", Primary: eeUndiscKey, Sign: 1},
	NEE:                        {Name: "NEE", Primary: neeKey, Sign: 1},
	NEEUndiscounted:            {Name: "NEEUndiscounted", Primary: neeUndisc, Sign: 1},
	EECounterparty:             {Name: "EECounterparty", Primary: eeCptyKey, Sign: 1},
	NEEOwn:                     {Name: "NEEOwn", Primary: neeOwnKey, Sign: 1},
	ExpectedCollateral:         {Name: "ExpectedCollateral", Primary: ratio(acc.PositiveCollateral, acc.ZeroRn, true), Sign: 1},
	ExpectedNegativeCollateral: {Name: "ExpectedNegativeCollateral", Primary: ratio(acc.NegativeCollateral, acc.ZeroRn, true), Sign: 1},

	EESigma:   {Name: "EESigma", Primary: variance(acc.PositiveExposure, acc.ZeroRn), Statistic: StatSigma, Sign: 1},
	EEStdErr:  {Name: "EEStdErr", Primary: variance(acc.PositiveExposure, acc.ZeroRn), Statistic: StatStdErr, Sign: 1},
	NEESigma:  {Name: "NEESigma", Primary: variance(acc.NegativeExposure, acc.ZeroRn), Statistic: StatSigma, Sign: 1},
	NEEStdErr: {Name: "NEEStdErr", Primary: variance(acc.NegativeExposure, acc.ZeroRn), Statistic: StatStdErr, Sign: 1},

	PFE:            {Name: "PFE", Primary: pfeKey, Statistic: StatQuantile, Sign: 1},
	PFEDiscounted:  {Name: "PFEDiscounted", Primary: distribution(acc.PositiveExposure, acc.ZeroRn, true), Statistic: StatQuantile, Sign: 1},
	PFNE:           {Name: "PFNE", Primary: pfneKey, Statistic: StatQuantile, Sign: -1},
	PFNEDiscounted: {Name: "PFNEDiscounted", Primary: distribution(acc.NegativeExposure, acc.ZeroRn, true), Statistic: StatQuantile, Sign: -1},
	CollateralPFE:  {Name: "CollateralPFE", Primary: pfeKey, Statistic: StatCollateralQuantile, Sign: 1},
	PeakPFE:        {Name: "PeakPFE", Primary: pfeKey, Statistic: StatQuantile, Shape: ShapePeak, Sign: 1},

	EPE:  {Name: "EPE", Primary: eeUndiscKey, Shape: ShapeTimeAverage, Sign: 1},
	ENE:  {Name: "ENE", Primary: neeUndisc, Shape: ShapeTimeAverage, Sign: 1},
	EEE:  {Name: "EEE", Primary: eeUndiscKey, Shape: ShapeRunningMax, Sign: 1},
	EEPE: {Name: "EEPE", Primary: eeUndiscKey, Shape: ShapeEffectiveEPE, Sign: 1},

	CVA:            {Name: "CVA", Primary: eeCptyKey, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: -1},
	CVANoWWR:       {Name: "CVANoWWR", Primary: eeKey, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: -1},
	DVA:            {Name: "DVA", Primary: neeOwnKey, Shape: ShapeIntegral, Kernel: ownKernel, Recovery: RecoveryOwn, Sign: -1},
	DVANoWWR:       {Name: "DVANoWWR", Primary: neeKey, Shape: ShapeIntegral, Kernel: ownKernel, Recovery: RecoveryOwn, Sign: -1},
	BCVA:           {Name: "BCVA", Shape: ShapeSum, Sign: 1, Components: []MeasureID{CVA, DVA}},
	FCA:            {Name: "FCA", Primary: fcaKey, Shape: ShapeIntegral, Kernel: survivalKernel, Sign: -1},
	FCANoDefault:   {Name: "FCANoDefault", Primary: funded(acc.KindRatio, acc.PositiveExposure, acc.ZeroRn, acc.BorrowSpread), Shape: ShapeIntegral, Kernel: noDefault, Sign: -1},
	FCAIndependent: {Name: "FCAIndependent", Primary: funded(acc.KindSpreadProduct, acc.PositiveExposure, acc.FundingRn, acc.BorrowSpread), Shape: ShapeIntegral, Kernel: survivalKernel, Sign: -1},
	FBA:            {Name: "FBA", Primary: fbaKey, Shape: ShapeIntegral, Kernel: survivalKernel, Sign: -1},
	FBANoDefault:   {Name: "FBANoDefault", Primary: funded(acc.KindRatio, acc.NegativeExposure, acc.ZeroRn, acc.LendSpread), Shape: ShapeIntegral, Kernel: noDefault, Sign: -1},
	FBAIndependent: {Name: "FBAIndependent", Primary: funded(acc.KindSpreadProduct, acc.NegativeExposure, acc.FundingRn, acc.LendSpread), Shape: ShapeIntegral, Kernel: survivalKernel, Sign: -1},
	FVA:            {Name: "FVA", Shape: ShapeSum, Sign: 1, Components: []MeasureID{FCA, FBA}},
	FVANoDefault:   {Name: "FVANoDefault", Shape: ShapeSum, Sign: 1, Components: []MeasureID{FCANoDefault, FBANoDefault}},
	FVAIndependent: {Name: "FVAIndependent", Shape: ShapeSum, Sign: 1, Components: []MeasureID{FCAIndependent, FBAIndependent}},
	CVAStdErr:      {Name: "CVAStdErr", Primary: variance(acc.PositiveExposure, acc.CptyRn), Statistic: StatStdErr, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1},
	DVAStdErr:      {Name: "DVAStdErr", Primary: variance(acc.NegativeExposure, acc.OwnRn), Statistic: StatStdErr, Shape: ShapeIntegral, Kernel: ownKernel, Recovery: RecoveryOwn, Sign: 1},

	EC: {
		Name: "EC", Primary: distribution(acc.PositiveExposure, acc.CptyRn, false),
		Auxiliary: keyRef(ratio(acc.PositiveExposure, acc.CptyRn, false)),
		Statistic: StatQuantile, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1,
	},
	ECDiscounted: {
		Name: "ECDiscounted", Primary: distribution(acc.PositiveExposure, acc.CptyRn, true),
		Auxiliary: keyRef(eeCptyKey),
		Statistic: StatQuantile, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1,
	},
	ECNoWWR: {
		Name: "ECNoWWR", Primary: pfeKey,
		Auxiliary: keyRef(eeUndiscKey),
		Statistic: StatQuantile, Shape: ShapeIntegral, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1,
	},

	CVATheta: {Name: "CVATheta", Primary: eeCptyKey, Shape: ShapeTheta, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: -1},
	DVATheta: {Name: "DVATheta", Primary: neeOwnKey, Shape: ShapeTheta, Kernel: ownKernel, Recovery: RecoveryOwn, Sign: -1},
	FCATheta: {Name: "FCATheta", Primary: fcaKey, Shape: ShapeTheta, Kernel: survivalKernel, Sign: -1},
	FBATheta: {Name: "FBATheta", Primary: fbaKey, Shape: ShapeTheta, Kernel: survivalKernel, Sign: -1},
	FVATheta: {Name: "FVATheta", Shape: ShapeSum, Sign: 1, Components: []MeasureID{FCATheta, FBATheta}},

	CVABucket: {Name: "CVABucket", Primary: eeCptyKey, Shape: ShapeBucket, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: -1},
	DVABucket: {Name: "DVABucket", Primary: neeOwnKey, Shape: ShapeBucket, Kernel: ownKernel, Recovery: RecoveryOwn, Sign: -1},

	EffectiveMaturity: {Name: "EffectiveMaturity", Primary: eeKey, Shape: ShapeEffectiveMaturity, Sign: 1,
		Note: "reported unclipped, values above 5 years are not capped; CapitalRequirement and RWA cap at 5"},
	CapitalRequirement: {Name: "CapitalRequirement", Primary: eeKey, Shape: ShapeCapital, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1},
	RWA: {
		Name: "RWA", Primary: eeUndiscKey, Auxiliary: keyRef(eeKey),
		Shape: ShapeRWA, Kernel: cptyKernel, Recovery: RecoveryCounterparty, Sign: 1,
	},
}

var byName = func() map[string]MeasureID {
	m := make(map[string]MeasureID, measureCount)
	for i := range definitions {
		definitions[i].ID = MeasureID(i)
		m[strings.ToLower(definitions[i].Name)] = MeasureID(i)
	}
	return m
}()

// Lookup returns the dispatch row of id.
func Lookup(id MeasureID) (Definition, error) {
	if id < 0 || id >= measureCount {
		return Definition{}, fmt.Errorf("%w: %d", ErrMeasureNotSupported, int(id))
	}
	return definitions[id], nil
}

// Definitions returns every row of the dispatch table in identifier order.
func Definitions() []Definition {
	out := make([]Definition, measureCount)
	copy(out, definitions[:])
	return out
}

// ParseMeasure resolves a measure by name, ignoring case.
func ParseMeasure(name string) (MeasureID, error) {
	id, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMeasureNotSupported, name)
	}
	return id, nil
}

func (id MeasureID) String() string {
	if id < 0 || id >= measureCount {
		return fmt.Sprintf("measure(%d)", int(id))
	}
	return definitions[id].Name
}
