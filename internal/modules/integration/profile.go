// Package integration turns per-exposure-date profiles into continuous-time
// functions and integrates them against discretized default and survival
// kernels. It also holds the regulatory derived measures (running maximum,
// time average, effective maturity, IRB capital) built on the same rules.
package integration

import (
	"sort"
	"time"

	"github.com/aristath/exposure/internal/domain"
)

const (
	hoursPerDay  = 24.0
	daysPerYear  = 365.0
	elapsedFloor = 1e-12
)

// Function is a real-valued function of calendar time.
type Function func(date time.Time) float64

// Profile is a measure known only at the exposure dates of a grid.
type Profile struct {
	Grid   domain.DateGrid
	Values []float64
}

// NewProfile pairs values with the grid they were reduced on.
func NewProfile(grid domain.DateGrid, values []float64) Profile {
	return Profile{Grid: grid, Values: values}
}

// At is Interpolate bound to the profile, usable wherever a Function is expected.
func (p Profile) At(date time.Time) float64 {
	return Interpolate(p, date)
}

// Interpolate evaluates p at date:
//   - date <= T0 returns the T0 value
//   - date == Tn returns the Tn value, any date after Tn returns 0
//   - otherwise linear interpolation between the bracketing exposure dates by elapsed days
func Interpolate(p Profile, date time.Time) float64 {
	dates := p.Grid.Dates
	if len(dates) == 0 || len(p.Values) == 0 {
		return 0
	}
	last := len(dates) - 1

	if !date.After(dates[0]) {
		return p.Values[0]
	}
	if !date.Before(dates[last]) {
		// exposure is zero beyond the last modeled date
		if date.Equal(dates[last]) {
			return p.Values[last]
		}
		return 0
	}

	// first T_i >= date; 1 <= i <= last here
	i := sort.Search(len(dates), func(i int) bool {
		return !dates[i].Before(date)
	})
	lo, hi := dates[i-1], dates[i]
	frac := Days(lo, date) / Days(lo, hi)
	return p.Values[i-1] + frac*(p.Values[i]-p.Values[i-1])
}

// Days returns the elapsed days from s to t as a fraction.
func Days(s, t time.Time) float64 {
	return t.Sub(s).Hours() / hoursPerDay
}

// Years returns the ACT/365F year fraction from s to t.
func Years(s, t time.Time) float64 {
	return Days(s, t) / daysPerYear
}
