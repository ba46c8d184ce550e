package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidGrid is returned for empty or non-increasing exposure grids.
	ErrInvalidGrid = errors.New("invalid exposure date grid")
	// ErrInvalidKernel is returned for malformed integration kernels.
	ErrInvalidKernel = errors.New("invalid integration kernel")
)

// DateGrid is the valuation date together with the ordered exposure dates T0 < T1 < ... < Tn.
type DateGrid struct {
	AsOf  time.Time
	Dates []time.Time
}

// NewDateGrid validates and builds a DateGrid.
func NewDateGrid(asOf time.Time, dates []time.Time) (DateGrid, error) {
	if len(dates) == 0 {
		return DateGrid{}, fmt.Errorf("%w: no exposure dates", ErrInvalidGrid)
	}
	if dates[0].Before(asOf) {
		return DateGrid{}, fmt.Errorf("%w: first exposure date %s precedes as-of %s",
			ErrInvalidGrid, dates[0].Format(time.DateOnly), asOf.Format(time.DateOnly))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return DateGrid{}, fmt.Errorf("%w: dates not strictly increasing at index %d", ErrInvalidGrid, i)
		}
	}
	owned := make([]time.Time, len(dates))
	copy(owned, dates)
	return DateGrid{AsOf: asOf, Dates: owned}, nil
}

// Len returns the number of exposure dates (n+1).
func (g DateGrid) Len() int {
	return len(g.Dates)
}

// First returns T0.
func (g DateGrid) First() time.Time {
	return g.Dates[0]
}

// Last returns Tn.
func (g DateGrid) Last() time.Time {
	return g.Dates[len(g.Dates)-1]
}

// Index returns the position of date in the grid, or -1.
func (g DateGrid) Index(date time.Time) int {
	i := sort.Search(len(g.Dates), func(i int) bool {
		return !g.Dates[i].Before(date)
	})
	if i < len(g.Dates) && g.Dates[i].Equal(date) {
		return i
	}
	return -1
}
