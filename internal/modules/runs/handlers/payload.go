package handlers

import (
	"fmt"
	"time"

	"github.com/aristath/exposure/internal/domain"
)

// DatasetPayload is the JSON form of a simulated dataset. Dates use
// YYYY-MM-DD. Conditioning streams a path omits default to 1 and spreads
// default to 0; rn and discount_factor are required.
type DatasetPayload struct {
	Name                 string          `json:"name"`
	AsOf                 string          `json:"as_of"`
	Dates                []string        `json:"dates"`
	CounterpartyRecovery float64         `json:"counterparty_recovery"`
	OwnRecovery          float64         `json:"own_recovery"`
	Kernels              []KernelPayload `json:"kernels"`
	Paths                []PathPayload   `json:"paths"`
}

// KernelPayload is one integration kernel, indexed by its position:
// counterparty default, own default, joint survival, no default.
type KernelPayload struct {
	Dates      []string  `json:"dates"`
	Increments []float64 `json:"increments"`
}

// PathPayload is one simulated path.
type PathPayload struct {
	PathID         int64             `json:"path_id"`
	Weight         float64           `json:"weight"`
	RN             []float64         `json:"rn"`
	RNCpty         []float64         `json:"rn_cpty,omitempty"`
	RNOwn          []float64         `json:"rn_own,omitempty"`
	RNSurvival     []float64         `json:"rn_survival,omitempty"`
	DiscountFactor []float64         `json:"discount_factor"`
	BorrowSpread   []float64         `json:"borrow_spread,omitempty"`
	LendSpread     []float64         `json:"lend_spread,omitempty"`
	OwnSpread      []float64         `json:"own_spread,omitempty"`
	Exposures      []ExposurePayload `json:"exposures"`
}

// ExposurePayload is the netted exposure of a path at one date.
type ExposurePayload struct {
	Positive           float64 `json:"positive"`
	PositiveCollateral float64 `json:"positive_collateral"`
	Negative           float64 `json:"negative"`
	NegativeCollateral float64 `json:"negative_collateral"`
}

// Build validates the payload and converts it to domain values.
func (p DatasetPayload) Build() (domain.DateGrid, domain.CreditContext, domain.MemoryPathTable, error) {
	var grid domain.DateGrid
	var credit domain.CreditContext

	if p.Name == "" {
		return grid, credit, nil, fmt.Errorf("name is required")
	}
	asOf, err := time.Parse(time.DateOnly, p.AsOf)
	if err != nil {
		return grid, credit, nil, fmt.Errorf("invalid as_of: %w", err)
	}
	dates, err := parseDates(p.Dates)
	if err != nil {
		return grid, credit, nil, err
	}
	grid, err = domain.NewDateGrid(asOf, dates)
	if err != nil {
		return grid, credit, nil, err
	}

	credit = domain.CreditContext{
		CounterpartyRecovery: p.CounterpartyRecovery,
		OwnRecovery:          p.OwnRecovery,
	}
	for i, k := range p.Kernels {
		kdates, err := parseDates(k.Dates)
		if err != nil {
			return grid, credit, nil, fmt.Errorf("kernel %s: %w", domain.KernelIndex(i), err)
		}
		kernel, err := domain.NewKernel(kdates, k.Increments)
		if err != nil {
			return grid, credit, nil, fmt.Errorf("kernel %s: %w", domain.KernelIndex(i), err)
		}
		credit.Kernels = append(credit.Kernels, kernel)
	}

	n := grid.Len()
	table := make(domain.MemoryPathTable, len(p.Paths))
	for i, path := range p.Paths {
		rec, err := path.record(n)
		if err != nil {
			return grid, credit, nil, fmt.Errorf("path %d: %w", path.PathID, err)
		}
		table[i] = rec
	}
	return grid, credit, table, nil
}

func (p PathPayload) record(n int) (domain.PathRecord, error) {
	if p.Weight < 0 {
		return domain.PathRecord{}, fmt.Errorf("negative weight %v", p.Weight)
	}
	if len(p.Exposures) != n {
		return domain.PathRecord{}, fmt.Errorf("%d exposures for %d dates", len(p.Exposures), n)
	}

	streams := []struct {
		name     string
		values   []float64
		fallback float64
		required bool
	}{
		{"rn", p.RN, 1, true},
		{"rn_cpty", p.RNCpty, 1, false},
		{"rn_own", p.RNOwn, 1, false},
		{"rn_survival", p.RNSurvival, 1, false},
		{"discount_factor", p.DiscountFactor, 0, true},
		{"borrow_spread", p.BorrowSpread, 0, false},
		{"lend_spread", p.LendSpread, 0, false},
		{"own_spread", p.OwnSpread, 0, false},
	}
	filled := make([][]float64, len(streams))
	for i, s := range streams {
		switch {
		case len(s.values) == n:
			filled[i] = s.values
		case len(s.values) == 0 && !s.required:
			filled[i] = constant(n, s.fallback)
		default:
			return domain.PathRecord{}, fmt.Errorf("%s has %d values for %d dates", s.name, len(s.values), n)
		}
	}

	rec := domain.PathRecord{
		Sample: domain.PathSample{
			PathID:         p.PathID,
			Weight:         p.Weight,
			RN:             filled[0],
			RNCpty:         filled[1],
			RNOwn:          filled[2],
			RNSurvival:     filled[3],
			DiscountFactor: filled[4],
			BorrowSpread:   filled[5],
			LendSpread:     filled[6],
			OwnSpread:      filled[7],
		},
		Exposures: make([]domain.Exposure, n),
	}
	for d, e := range p.Exposures {
		if e.Positive < 0 || e.Negative > 0 {
			return domain.PathRecord{}, fmt.Errorf("exposure at date %d has positive < 0 or negative > 0", d)
		}
		rec.Exposures[d] = domain.Exposure(e)
	}
	return rec, nil
}

func parseDates(values []string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", v, err)
		}
		out[i] = t
	}
	return out, nil
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
