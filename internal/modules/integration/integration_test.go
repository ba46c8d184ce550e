package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var asOf = day(2024, time.January, 1)

func testProfile(t *testing.T) Profile {
	t.Helper()
	grid, err := domain.NewDateGrid(asOf, []time.Time{
		day(2024, time.April, 1),
		day(2024, time.July, 1),
		day(2025, time.January, 1),
		day(2026, time.January, 1),
	})
	require.NoError(t, err)
	return NewProfile(grid, []float64{10, 20, 15, 5})
}

// monthlyKernel places a kernel point on the first of every month from asOf
// to end, each carrying the same increment.
func monthlyKernel(t *testing.T, end time.Time, increment float64) domain.Kernel {
	t.Helper()
	var dates []time.Time
	var incs []float64
	for d := asOf; !d.After(end); d = d.AddDate(0, 1, 0) {
		dates = append(dates, d)
		if d.Equal(asOf) {
			incs = append(incs, 0)
		} else {
			incs = append(incs, increment)
		}
	}
	k, err := domain.NewKernel(dates, incs)
	require.NoError(t, err)
	return k
}

func TestInterpolate_Boundaries(t *testing.T) {
	p := testProfile(t)
	last := p.Grid.Last()

	assert.Equal(t, 10.0, Interpolate(p, p.Grid.First()))
	assert.Equal(t, 10.0, Interpolate(p, asOf))
	assert.Equal(t, 5.0, Interpolate(p, last))
	assert.Equal(t, 0.0, Interpolate(p, last.Add(time.Hour)))
	assert.Equal(t, 0.0, Interpolate(p, last.AddDate(3, 0, 0)))
}

func TestInterpolate_Linear(t *testing.T) {
	p := testProfile(t)

	// 45 of the 91 days between April 1 and July 1
	got := Interpolate(p, day(2024, time.May, 16))
	assert.InDelta(t, 10+10*45.0/91.0, got, 1e-12)

	assert.Equal(t, 20.0, p.At(day(2024, time.July, 1)))
}

func TestInterpolate_SingleDateGrid(t *testing.T) {
	grid, err := domain.NewDateGrid(asOf, []time.Time{asOf})
	require.NoError(t, err)
	p := NewProfile(grid, []float64{7})

	assert.Equal(t, 7.0, Interpolate(p, asOf))
	assert.Equal(t, 0.0, Interpolate(p, asOf.AddDate(0, 0, 1)))
}

func TestKernelMass(t *testing.T) {
	k, err := domain.NewKernel(
		[]time.Time{asOf, day(2024, time.July, 1), day(2025, time.January, 1)},
		[]float64{0, 0.02, 0.03},
	)
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"before first point", asOf.AddDate(0, 0, -5), 0},
		{"first point", asOf, 0},
		{"knot", day(2024, time.July, 1), 0.02},
		{"inside interval", day(2024, time.October, 1), 0.02 + 0.03*92.0/184.0},
		{"last point", day(2025, time.January, 1), 0.05},
		{"after last point", day(2030, time.January, 1), 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KernelMass(k, tt.at), 1e-15)
		})
	}

	assert.InDelta(t, 0.03, DefaultProbability(k, day(2024, time.July, 1), day(2025, time.January, 1)), 1e-15)
	assert.Equal(t, 0.0, DefaultProbability(k, day(2025, time.January, 1), day(2024, time.July, 1)))
}

func TestIntegrate_ConstantFunction(t *testing.T) {
	k := monthlyKernel(t, day(2025, time.January, 1), 0.001)
	grid, err := domain.NewDateGrid(asOf, []time.Time{day(2025, time.January, 1)})
	require.NoError(t, err)
	one := NewProfile(grid, []float64{1})

	assert.InDelta(t, 0.012, Integrate(one, asOf, day(2025, time.January, 1), k, 0), 1e-15)
	assert.InDelta(t, 0.012*0.6, Integrate(one, asOf, day(2025, time.January, 1), k, 0.4), 1e-15)
	assert.Equal(t, 0.0, Integrate(one, asOf, asOf, k, 0))
	assert.Equal(t, 0.0, Integrate(one, day(2025, time.January, 1), asOf, k, 0))
	assert.Equal(t, 0.0, Integrate(one, asOf, day(2025, time.January, 1), domain.Kernel{}, 0))
}

func TestIntegrate_ExposureDateInsideKernelInterval(t *testing.T) {
	// a tent peaking inside one kernel interval that accrues 0.01 per day
	grid, err := domain.NewDateGrid(asOf, []time.Time{
		day(2024, time.January, 1), day(2024, time.January, 11), day(2024, time.January, 21),
	})
	require.NoError(t, err)
	tent := NewProfile(grid, []float64{0, 10, 0})
	k, err := domain.NewKernel(
		[]time.Time{day(2024, time.January, 1), day(2024, time.January, 21), day(2024, time.January, 31)},
		[]float64{0, 0.2, 0.1},
	)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, Integrate(tent, asOf, day(2024, time.January, 21), k, 0), 1e-12)
	assert.InDelta(t, 0.6, Integrate(tent, asOf, day(2024, time.January, 21), k, 0.4), 1e-12)
	// zero beyond the last exposure date
	assert.InDelta(t, 1.0, Integrate(tent, asOf, day(2024, time.January, 31), k, 0), 1e-12)
	assert.Equal(t, 0.0, Integrate(tent, day(2024, time.January, 21), day(2024, time.January, 31), k, 0))
}

func TestIntegrate_FirstKernelIncrementIsAnAtom(t *testing.T) {
	grid, err := domain.NewDateGrid(asOf, []time.Time{day(2024, time.January, 1), day(2024, time.January, 31)})
	require.NoError(t, err)
	p := NewProfile(grid, []float64{0, 30})
	k, err := domain.NewKernel([]time.Time{day(2024, time.January, 11)}, []float64{0.5})
	require.NoError(t, err)

	// p is 10 on January 11
	assert.InDelta(t, 5.0, Integrate(p, asOf, day(2024, time.January, 20), k, 0), 1e-12)
	assert.InDelta(t, 5.0, Integrate(p, day(2024, time.January, 5), day(2024, time.January, 11), k, 0), 1e-12)
	assert.Equal(t, 0.0, Integrate(p, day(2024, time.January, 11), day(2024, time.January, 20), k, 0))
}

func TestIntegrate_Additivity(t *testing.T) {
	aligned := testProfile(t)
	monthly := monthlyKernel(t, day(2026, time.January, 1), 0.004)

	grid, err := domain.NewDateGrid(asOf, []time.Time{
		day(2024, time.March, 1),
		day(2024, time.September, 1),
		day(2025, time.June, 1),
		day(2026, time.January, 1),
	})
	require.NoError(t, err)
	misaligned := NewProfile(grid, []float64{1, 5, 3, 7})
	sparse, err := domain.NewKernel([]time.Time{
		day(2024, time.February, 1),
		day(2024, time.July, 1),
		day(2025, time.January, 1),
		day(2025, time.September, 1),
		day(2026, time.June, 1),
	}, []float64{0.01, 0.02, 0.03, 0.025, 0.02})
	require.NoError(t, err)

	cases := []struct {
		name    string
		p       Profile
		k       domain.Kernel
		a, b, c time.Time
	}{
		{"inside kernel intervals", aligned, monthly, asOf.AddDate(0, 0, 10), day(2024, time.September, 17), day(2025, time.August, 20)},
		{"split on a knot", aligned, monthly, asOf, day(2024, time.July, 1), day(2025, time.June, 3)},
		{"split on exposure date", aligned, monthly, day(2024, time.February, 14), day(2025, time.January, 1), day(2026, time.January, 1)},
		{"exposure dates inside kernel intervals", misaligned, sparse, asOf, day(2024, time.May, 5), day(2025, time.March, 3)},
		{"split on last exposure date", misaligned, sparse, day(2025, time.March, 3), day(2026, time.January, 1), day(2026, time.March, 1)},
		{"end beyond last exposure date", misaligned, sparse, day(2024, time.January, 15), day(2025, time.November, 11), day(2026, time.May, 1)},
		{"split beyond last exposure date", misaligned, sparse, asOf, day(2026, time.March, 1), day(2026, time.June, 1)},
		{"split before first kernel date", misaligned, sparse, asOf, day(2024, time.January, 20), day(2024, time.April, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			whole := Integrate(tc.p, tc.a, tc.c, tc.k, 0.4)
			left := Integrate(tc.p, tc.a, tc.b, tc.k, 0.4)
			right := Integrate(tc.p, tc.b, tc.c, tc.k, 0.4)
			require.Greater(t, whole, 0.0)
			assert.InEpsilon(t, whole, left+right, 1e-9)
		})
	}
}

func TestIntegrateTheta(t *testing.T) {
	p := testProfile(t)
	k := monthlyKernel(t, day(2026, time.January, 1), 0.004)
	date := day(2024, time.November, 20)

	assert.Equal(t, Integrate(p, asOf, date, k, 0.4), IntegrateTheta(p, asOf, date, k, 0.4))
	assert.Equal(t, 0.0, IntegrateTheta(p, asOf, asOf, k, 0.4))
}

func TestIntegrateBucket(t *testing.T) {
	p := testProfile(t)
	grid := p.Grid
	k := monthlyKernel(t, day(2026, time.January, 1), 0.004)

	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{"before as-of", asOf.AddDate(0, 0, -1), 0},
		{"first stub", day(2024, time.February, 1), Integrate(p, asOf, grid.Dates[0], k, 0)},
		{"on exposure date", grid.Dates[1], Integrate(p, grid.Dates[1], grid.Dates[2], k, 0)},
		{"inside bucket", day(2025, time.March, 3), Integrate(p, grid.Dates[2], grid.Dates[3], k, 0)},
		{"last date", grid.Last(), 0},
		{"beyond last date", grid.Last().AddDate(1, 0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IntegrateBucket(p, grid, tt.date, k, 0))
		})
	}

	// buckets tile the horizon
	var total float64
	total += IntegrateBucket(p, grid, asOf, k, 0)
	for _, d := range grid.Dates[:grid.Len()-1] {
		total += IntegrateBucket(p, grid, d, k, 0)
	}
	assert.InEpsilon(t, Integrate(p, asOf, grid.Last(), k, 0), total, 1e-9)
}

func TestRunningMax(t *testing.T) {
	p := testProfile(t)

	assert.Equal(t, 10.0, RunningMax(p, asOf))
	assert.Equal(t, 20.0, RunningMax(p, day(2024, time.July, 1)))
	assert.Equal(t, 20.0, RunningMax(p, day(2025, time.January, 1)))
	assert.Equal(t, 20.0, RunningMax(p, p.Grid.Last().AddDate(0, 0, 1)))

	grid, err := domain.NewDateGrid(asOf, []time.Time{day(2024, time.June, 1)})
	require.NoError(t, err)
	negative := NewProfile(grid, []float64{-3})
	assert.Equal(t, 0.0, RunningMax(negative, asOf))
}

func TestTimeAverage(t *testing.T) {
	p := testProfile(t)
	two := func(time.Time) float64 { return 2 }

	assert.InDelta(t, 2.0, TimeAverage(two, p.Grid, day(2024, time.September, 9)), 1e-12)
	assert.InDelta(t, 2.0, TimeAverage(two, p.Grid, day(2027, time.January, 1)), 1e-12)
	assert.Equal(t, 0.0, TimeAverage(two, p.Grid, asOf))

	// right-point rule over the first two exposure dates
	got := TimeAverage(p.At, p.Grid, day(2024, time.July, 1))
	want := (10*Days(asOf, day(2024, time.April, 1)) + 20*Days(day(2024, time.April, 1), day(2024, time.July, 1))) /
		Days(asOf, day(2024, time.July, 1))
	assert.InDelta(t, want, got, 1e-12)
}

func TestEffectiveMaturity(t *testing.T) {
	start := day(2025, time.January, 1)
	dates := []time.Time{
		day(2025, time.July, 1),
		day(2026, time.January, 1),
		day(2026, time.July, 1),
		day(2027, time.January, 1),
	}
	grid, err := domain.NewDateGrid(start, dates)
	require.NoError(t, err)

	t.Run("flat zero portfolio", func(t *testing.T) {
		assert.Equal(t, 1.0, EffectiveMaturity(NewProfile(grid, []float64{0, 0, 0, 0})))
	})

	t.Run("no exposure in the first year", func(t *testing.T) {
		assert.Equal(t, 5.0, EffectiveMaturity(NewProfile(grid, []float64{0, 0, 8, 8})))
	})

	t.Run("back-loaded profile is not clipped", func(t *testing.T) {
		m := EffectiveMaturity(NewProfile(grid, []float64{0, 1, 8, 8}))
		assert.Greater(t, m, MaturityCeiling)
	})

	t.Run("constant exposure over two years", func(t *testing.T) {
		assert.InDelta(t, 2.0, EffectiveMaturity(NewProfile(grid, []float64{4, 4, 4, 4})), 1e-12)
	})

	t.Run("effective epe uses running max", func(t *testing.T) {
		p := NewProfile(grid, []float64{6, 2, 2, 2})
		assert.InDelta(t, 6.0, EffectiveEPE(p), 1e-12)
	})
}

func TestCapitalRequirement(t *testing.T) {
	tests := []struct {
		name         string
		pd, lgd, mat float64
		want         float64
	}{
		{"reference corporate", 0.01, 0.45, 2.5, 0.07385344111364117},
		{"one year maturity", 0.01, 0.45, 1, 0.058622705305432184},
		{"capped maturity", 0.03, 0.6, 5, 0.17004407550738873},
		{"zero pd", 0, 0.45, 2.5, 0},
		{"certain default", 1, 0.45, 2.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CapitalRequirement(tt.pd, tt.lgd, tt.mat), 1e-9)
		})
	}

	assert.InDelta(t, 87.5, RiskWeightedAssets(100, 0.05), 1e-12)
}
