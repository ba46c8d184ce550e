package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewDateGrid(t *testing.T) {
	asOf := day("2024-01-01")
	dates := []time.Time{day("2024-01-01"), day("2024-07-01"), day("2025-01-01")}

	g, err := NewDateGrid(asOf, dates)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, dates[0], g.First())
	assert.Equal(t, dates[2], g.Last())
	assert.Equal(t, 1, g.Index(day("2024-07-01")))
	assert.Equal(t, -1, g.Index(day("2024-08-01")))
	assert.Equal(t, -1, g.Index(day("2026-01-01")))

	dates[1] = day("2024-09-01")
	assert.Equal(t, day("2024-07-01"), g.Dates[1], "grid owns its dates")

	tests := []struct {
		name  string
		asOf  time.Time
		dates []time.Time
	}{
		{"empty", asOf, nil},
		{"first date before as-of", day("2024-02-01"), []time.Time{day("2024-01-15")}},
		{"repeated date", asOf, []time.Time{day("2024-03-01"), day("2024-03-01")}},
		{"decreasing", asOf, []time.Time{day("2024-06-01"), day("2024-03-01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDateGrid(tt.asOf, tt.dates)
			assert.True(t, errors.Is(err, ErrInvalidGrid))
		})
	}
}

func TestNewKernel(t *testing.T) {
	k, err := NewKernel([]time.Time{day("2024-01-01"), day("2024-02-01")}, []float64{0.01, 0.02})
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())

	_, err = NewKernel([]time.Time{day("2024-01-01")}, []float64{0.01, 0.02})
	assert.ErrorIs(t, err, ErrInvalidKernel)

	_, err = NewKernel([]time.Time{day("2024-02-01"), day("2024-01-01")}, []float64{0.01, 0.02})
	assert.ErrorIs(t, err, ErrInvalidKernel)

	empty, err := NewKernel(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestCreditContext_Kernel(t *testing.T) {
	cpty, err := NewKernel([]time.Time{day("2024-01-01")}, []float64{0.05})
	require.NoError(t, err)
	c := CreditContext{Kernels: []Kernel{cpty}, CounterpartyRecovery: 0.4}

	k, ok := c.Kernel(KernelCounterpartyDefault)
	require.True(t, ok)
	assert.Equal(t, []float64{0.05}, k.Increments)

	_, ok = c.Kernel(KernelOwnDefault)
	assert.False(t, ok)
	_, ok = c.Kernel(KernelIndex(-1))
	assert.False(t, ok)

	assert.Equal(t, "joint_survival", KernelJointSurvival.String())
	assert.Equal(t, "kernel(7)", KernelIndex(7).String())
}

func TestMemoryPathTable(t *testing.T) {
	table := make(MemoryPathTable, 5)
	for i := range table {
		table[i] = PathRecord{
			Sample:    PathSample{PathID: int64(i), Weight: 1, DiscountFactor: []float64{1, 1}},
			Exposures: []Exposure{{Positive: float64(i)}, {Negative: -float64(i)}},
		}
	}

	var ids []int64
	require.NoError(t, table.Slice(1, 3).Each(func(rec *PathRecord) error {
		ids = append(ids, rec.Sample.PathID)
		return nil
	}))
	assert.Equal(t, []int64{1, 2}, ids)

	assert.Equal(t, 5, table.Slice(-3, 10).Len())
	assert.Zero(t, table.Slice(4, 2).Len())

	stop := errors.New("stop")
	calls := 0
	err := table.Each(func(*PathRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	rec := &table[3]
	assert.Equal(t, 2, rec.Sample.Dates())
	assert.Equal(t, -3.0, rec.Exposure(&rec.Sample, 1).Negative)
	assert.Equal(t, Exposure{}, rec.Exposure(&rec.Sample, 5))
}
