package xva

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure/internal/domain"
)

var testAsOf = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func testGrid(t *testing.T) domain.DateGrid {
	t.Helper()
	var dates []time.Time
	for q := 1; q <= 8; q++ {
		dates = append(dates, testAsOf.AddDate(0, 3*q, 0))
	}
	grid, err := domain.NewDateGrid(testAsOf, dates)
	require.NoError(t, err)
	return grid
}

func monthly(t *testing.T, increment float64) domain.Kernel {
	t.Helper()
	var dates []time.Time
	var incs []float64
	for m := 0; m <= 24; m++ {
		dates = append(dates, testAsOf.AddDate(0, m, 0))
		if m == 0 {
			incs = append(incs, 0)
		} else {
			incs = append(incs, increment)
		}
	}
	k, err := domain.NewKernel(dates, incs)
	require.NoError(t, err)
	return k
}

func testCredit(t *testing.T) domain.CreditContext {
	t.Helper()
	return domain.CreditContext{
		Kernels: []domain.Kernel{
			monthly(t, 0.002),
			monthly(t, 0.001),
			monthly(t, 0.08),
			monthly(t, 1.0/12),
		},
		CounterpartyRecovery: 0.4,
		OwnRecovery:          0.35,
	}
}

// testTable builds deterministic paths with exposures of both signs and
// non-trivial measure-change, discount and spread streams.
func testTable(n, dates int) domain.MemoryPathTable {
	table := make(domain.MemoryPathTable, n)
	for i := range table {
		x := float64(i)
		rec := domain.PathRecord{
			Sample: domain.PathSample{
				PathID:         int64(i),
				Weight:         1 + 0.25*math.Mod(x, 4),
				RN:             make([]float64, dates),
				RNCpty:         make([]float64, dates),
				RNOwn:          make([]float64, dates),
				RNSurvival:     make([]float64, dates),
				DiscountFactor: make([]float64, dates),
				BorrowSpread:   make([]float64, dates),
				LendSpread:     make([]float64, dates),
				OwnSpread:      make([]float64, dates),
			},
			Exposures: make([]domain.Exposure, dates),
		}
		for d := 0; d < dates; d++ {
			s := &rec.Sample
			s.RN[d] = 1
			s.RNCpty[d] = 0.7 + 0.6*math.Abs(math.Sin(x*1.3+float64(d)))
			s.RNOwn[d] = 0.8 + 0.4*math.Abs(math.Cos(x*0.9+float64(d)))
			s.RNSurvival[d] = 0.97
			s.DiscountFactor[d] = math.Exp(-0.025 * 0.25 * float64(d+1))
			s.BorrowSpread[d] = 0.008 + 0.002*math.Mod(x, 3)
			s.LendSpread[d] = 0.004 + 0.001*math.Mod(x, 2)
			s.OwnSpread[d] = 0.01

			v := 100*math.Sin(x*0.37+0.5*float64(d)) + 3*float64(d)
			if v > 0 {
				rec.Exposures[d] = domain.Exposure{Positive: v, PositiveCollateral: 0.25 * v}
			} else {
				rec.Exposures[d] = domain.Exposure{Negative: v, NegativeCollateral: 0.1 * v}
			}
		}
		table[i] = rec
	}
	return table
}
