package integration

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/exposure/internal/domain"
)

// cumulativeKernel caches the running sum of a kernel's increments.
type cumulativeKernel struct {
	kernel domain.Kernel
	mass   []float64
}

func newCumulativeKernel(k domain.Kernel) cumulativeKernel {
	mass := make([]float64, len(k.Increments))
	if len(mass) > 0 {
		floats.CumSum(mass, k.Increments)
	}
	return cumulativeKernel{kernel: k, mass: mass}
}

// at returns the cumulative mass up to t. Before the first kernel date the mass
// is 0; inside (k_{i-1}, k_i] the increment of k_i accrues linearly in days;
// after the last date the mass stays at the total.
func (c cumulativeKernel) at(t time.Time) float64 {
	dates := c.kernel.Dates
	n := len(dates)
	if n == 0 {
		return 0
	}
	i := sort.Search(n, func(i int) bool {
		return !dates[i].Before(t)
	})
	switch {
	case i == n:
		return c.mass[n-1]
	case dates[i].Equal(t):
		return c.mass[i]
	case i == 0:
		return 0
	}
	frac := Days(dates[i-1], t) / Days(dates[i-1], dates[i])
	return c.mass[i-1] + frac*c.kernel.Increments[i]
}

// KernelMass returns the cumulative kernel mass up to t.
func KernelMass(k domain.Kernel, t time.Time) float64 {
	return newCumulativeKernel(k).at(t)
}

// DefaultProbability returns the kernel mass falling in (from, to].
func DefaultProbability(k domain.Kernel, from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	c := newCumulativeKernel(k)
	return c.at(to) - c.at(from)
}

// Integrate computes (1-recovery) * ∫ p dM over (from, to] with the trapezoid
// rule. The walk visits from, every kernel date and exposure date strictly
// inside the interval, and to. Between consecutive nodes the interpolated
// profile is linear and the kernel mass accrues linearly, so each step is
// exact and the integral is additive in its bounds. The profile is zero after
// Tn, so steps starting at or after Tn contribute nothing. The mass of the
// first kernel date has no interval to accrue over and is weighted by p there.
func Integrate(p Profile, from, to time.Time, k domain.Kernel, recovery float64) float64 {
	if !to.After(from) || len(k.Dates) == 0 || p.Grid.Len() == 0 {
		return 0
	}
	c := newCumulativeKernel(k)
	last := p.Grid.Last()

	nodes := mergeNodes(from, to, k.Dates, p.Grid.Dates)
	var sum float64
	prev, prevM := from, c.at(from)
	for _, t := range nodes {
		mt := c.at(t)
		// the first increment is an atom at the first kernel date
		var atom float64
		if t.Equal(k.Dates[0]) {
			atom = k.Increments[0]
		}
		if prev.Before(last) {
			ft := p.At(t)
			sum += 0.5*(p.At(prev)+ft)*(mt-atom-prevM) + ft*atom
		}
		prev, prevM = t, mt
	}

	return (1 - recovery) * sum
}

// mergeNodes returns the sorted union of a and b strictly inside (from, to),
// followed by to.
func mergeNodes(from, to time.Time, a, b []time.Time) []time.Time {
	inside := func(ds []time.Time) []time.Time {
		lo := sort.Search(len(ds), func(i int) bool { return ds[i].After(from) })
		hi := sort.Search(len(ds), func(i int) bool { return !ds[i].Before(to) })
		if lo >= hi {
			return nil
		}
		return ds[lo:hi]
	}
	a, b = inside(a), inside(b)

	nodes := make([]time.Time, 0, len(a)+len(b)+1)
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Before(b[j])):
			nodes = append(nodes, a[i])
			i++
		case i == len(a) || b[j].Before(a[i]):
			nodes = append(nodes, b[j])
			j++
		default:
			nodes = append(nodes, a[i])
			i++
			j++
		}
	}
	return append(nodes, to)
}

// IntegrateTheta integrates from the valuation date up to date, the
// contribution already consumed when the measure is priced forward at date.
func IntegrateTheta(p Profile, asOf, date time.Time, k domain.Kernel, recovery float64) float64 {
	return Integrate(p, asOf, date, k, recovery)
}

// IntegrateBucket integrates over the single bucket containing date: [T_i, T_i+1)
// on the grid, or [asOf, T0) before the first exposure date. Dates outside
// [asOf, Tn) give 0.
func IntegrateBucket(p Profile, grid domain.DateGrid, date time.Time, k domain.Kernel, recovery float64) float64 {
	if grid.Len() == 0 || date.Before(grid.AsOf) || !date.Before(grid.Last()) {
		return 0
	}
	if date.Before(grid.First()) {
		return Integrate(p, grid.AsOf, grid.First(), k, recovery)
	}
	// last T_i <= date
	i := sort.Search(grid.Len(), func(i int) bool {
		return grid.Dates[i].After(date)
	}) - 1
	return Integrate(p, grid.Dates[i], grid.Dates[i+1], k, recovery)
}
