package domain

// PathSample is one simulated path as produced by the simulation engine.
// Every slice holds one entry per exposure date (index d of the DateGrid).
type PathSample struct {
	PathID int64
	Weight float64 // Monte-Carlo or quadrature weight, >= 0

	RN         []float64 // base measure-change derivative
	RNCpty     []float64 // counterparty-default conditioning
	RNOwn      []float64 // own-default conditioning
	RNSurvival []float64 // joint-survival conditioning (funding)

	DiscountFactor []float64
	BorrowSpread   []float64
	LendSpread     []float64
	OwnSpread      []float64
}

// Dates returns the number of exposure dates the sample covers.
func (p *PathSample) Dates() int {
	return len(p.DiscountFactor)
}

// Exposure is the netted exposure of one path at one date.
// Positive is >= 0 and Negative is <= 0.
type Exposure struct {
	Positive           float64
	PositiveCollateral float64
	Negative           float64
	NegativeCollateral float64
}

// ExposureFunc supplies the netted exposure of a path at a date index.
type ExposureFunc func(p *PathSample, d int) Exposure

// PathRecord pairs a path sample with its precomputed exposures.
type PathRecord struct {
	Sample    PathSample
	Exposures []Exposure
}

// Exposure satisfies ExposureFunc for the record's own sample.
func (r *PathRecord) Exposure(_ *PathSample, d int) Exposure {
	if d < 0 || d >= len(r.Exposures) {
		return Exposure{}
	}
	return r.Exposures[d]
}

// PathTable is a materialized set of path records. Slice returns the records
// with positions in [from, to) so a table can be split into contiguous shards.
type PathTable interface {
	Len() int
	Each(fn func(rec *PathRecord) error) error
	Slice(from, to int) PathTable
}

// MemoryPathTable is a PathTable held in memory.
type MemoryPathTable []PathRecord

// Len returns the number of records.
func (t MemoryPathTable) Len() int {
	return len(t)
}

// Each calls fn for every record in order and stops at the first error.
func (t MemoryPathTable) Each(fn func(rec *PathRecord) error) error {
	for i := range t {
		if err := fn(&t[i]); err != nil {
			return err
		}
	}
	return nil
}

// Slice returns the records in [from, to) as a table sharing storage.
func (t MemoryPathTable) Slice(from, to int) PathTable {
	if from < 0 {
		from = 0
	}
	if to > len(t) {
		to = len(t)
	}
	if from >= to {
		return MemoryPathTable{}
	}
	return t[from:to]
}
