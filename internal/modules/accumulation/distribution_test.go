package accumulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure/internal/domain"
)

func TestNewDistribution(t *testing.T) {
	tests := []struct {
		name       string
		points     []point
		mass, norm float64
		values     []float64
		cdf        []float64
	}{
		{
			name:   "zero point prepended",
			points: []point{{20, 1}, {10, 1}},
			mass:   2, norm: 3,
			values: []float64{0, 10, 20},
			cdf:    []float64{1.0 / 3, 2.0 / 3, 1},
		},
		{
			name:   "equal values merged",
			points: []point{{5, 1}, {5, 2}, {7, 1}},
			mass:   4, norm: 4,
			values: []float64{5, 7},
			cdf:    []float64{0.75, 1},
		},
		{
			name:   "no positive samples",
			points: nil,
			mass:   0, norm: 2,
			values: []float64{0},
			cdf:    []float64{1},
		},
		{
			name:   "no weight at all",
			points: nil,
			mass:   0, norm: 0,
			values: []float64{0},
			cdf:    []float64{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDistribution(tt.points, tt.mass, tt.norm, 0)
			assert.Equal(t, tt.values, d.Values)
			assert.InDeltaSlice(t, tt.cdf, d.CDF, 1e-12)
		})
	}
}

func TestDistribution_Quantile(t *testing.T) {
	d := newDistribution([]point{{10, 1}, {20, 1}}, 2, 3, 0)

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 0},
		{0.2, 0},
		{1.0 / 3, 0},
		{0.5, 10},
		{0.95, 20},
		{1, 20},
	}
	for _, tt := range tests {
		q, err := d.Quantile(tt.p)
		require.NoError(t, err)
		assert.Equal(t, tt.want, q, "p=%v", tt.p)
	}

	for _, p := range []float64{1.01, -0.1, math.NaN()} {
		_, err := d.Quantile(p)
		assert.ErrorIs(t, err, ErrInvalidConfidence, "p=%v", p)
	}

	trimmed := newDistribution([]point{{10, 1}, {20, 1}}, 2, 3, 0.9)
	_, err := trimmed.Quantile(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidConfidence)
}

func TestDistribution_MinConfidenceTrimsKnots(t *testing.T) {
	pts := make([]point, 0, 10)
	for i := 1; i <= 10; i++ {
		pts = append(pts, point{float64(i), 1})
	}
	d := newDistribution(pts, 10, 10, 0.75)

	assert.Equal(t, []float64{8, 9, 10}, d.Values)
	q, err := d.Quantile(0.75)
	require.NoError(t, err)
	assert.Equal(t, 8.0, q)
	q, err = d.Quantile(0.95)
	require.NoError(t, err)
	assert.Equal(t, 10.0, q)

	_, err = d.Quantile(0.5)
	assert.ErrorIs(t, err, ErrConfidenceBelowMinimum)
}

func TestDistribution_CDFMonotone(t *testing.T) {
	s := NewSet(3)
	require.NoError(t, s.Register(pfeUndiscounted, 0))
	addAll(t, s, syntheticRecords(80))
	require.NoError(t, s.Reduce())

	r, err := s.Reduced(pfeUndiscounted)
	require.NoError(t, err)
	for d, dist := range r.Exposure {
		require.NotEmpty(t, dist.CDF)
		for i := 1; i < len(dist.CDF); i++ {
			assert.GreaterOrEqual(t, dist.CDF[i], dist.CDF[i-1])
			assert.Greater(t, dist.Values[i], dist.Values[i-1])
		}
		assert.InDelta(t, 1.0, dist.CDF[len(dist.CDF)-1], 1e-12, "date %d", d)

		q50, err := dist.Quantile(0.5)
		require.NoError(t, err)
		q99, err := dist.Quantile(0.99)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q99, q50)
	}
}

func TestDistribution_NegativeSideUsesMagnitude(t *testing.T) {
	key := Key{Kind: KindDistribution, Side: NegativeExposure, Weighting: ZeroRn}
	s := NewSet(1)
	require.NoError(t, s.Register(key, 0))
	addAll(t, s, []domain.PathRecord{
		unitRecord(1, domain.Exposure{Negative: -8, NegativeCollateral: -2}),
		unitRecord(2, domain.Exposure{Negative: -4, NegativeCollateral: -1}),
		unitRecord(3, domain.Exposure{Positive: 6}),
		unitRecord(4, domain.Exposure{Negative: -12}),
	})
	require.NoError(t, s.Reduce())

	r, err := s.Reduced(key)
	require.NoError(t, err)
	q, err := r.Quantiles(0.9)
	require.NoError(t, err)
	assert.Equal(t, 12.0, q[0])

	c, err := r.CollateralQuantiles(0.9)
	require.NoError(t, err)
	assert.Equal(t, 2.0, c[0])
	c, err = r.CollateralQuantiles(0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c[0])
	c, err = r.CollateralQuantiles(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c[0])
}

func TestDistribution_DiscountedScalesValues(t *testing.T) {
	key := Key{Kind: KindDistribution, Side: PositiveExposure, Weighting: ZeroRn, Discounted: true}
	s := NewSet(1)
	require.NoError(t, s.Register(key, 0))

	a := unitRecord(1, positive(10))
	a.Sample.DiscountFactor[0] = 0.5
	b := unitRecord(2, positive(4))
	b.Sample.DiscountFactor[0] = 0.5
	c := unitRecord(3, positive(1))
	c.Sample.Weight = 0
	addAll(t, s, []domain.PathRecord{a, b, c})
	require.NoError(t, s.Reduce())

	r, err := s.Reduced(key)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, r.Exposure[0].Values)
	assert.InDeltaSlice(t, []float64{0.5, 1}, r.Exposure[0].CDF, 1e-12)
}
