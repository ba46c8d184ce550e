package xva

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
)

// BatchCalculator answers measure queries from a stored path table. The
// fundamentals a query needs are computed on first use with one pass over the
// table and cached; quantiles are available at any confidence.
type BatchCalculator struct {
	eval  *Evaluator
	table domain.PathTable
	cache map[acc.Key]*acc.Reduced
	log   zerolog.Logger
}

// NewBatchCalculator creates a calculator over table.
func NewBatchCalculator(grid domain.DateGrid, credit domain.CreditContext, table domain.PathTable, log zerolog.Logger) *BatchCalculator {
	return &BatchCalculator{
		eval:  NewEvaluator(grid, credit),
		table: table,
		cache: make(map[acc.Key]*acc.Reduced),
		log:   log.With().Str("component", "batch_calculator").Logger(),
	}
}

// Reduced returns the cached fundamental of key, computing it if needed.
func (b *BatchCalculator) Reduced(key acc.Key) (*acc.Reduced, error) {
	if err := b.ensure([]acc.Key{key}); err != nil {
		return nil, err
	}
	return b.cache[key], nil
}

// ensure computes every key missing from the cache in a single table pass.
func (b *BatchCalculator) ensure(keys []acc.Key) error {
	set := acc.NewSet(b.eval.grid.Len())
	missing := 0
	for _, key := range keys {
		if _, ok := b.cache[key]; ok {
			continue
		}
		if err := set.Register(key, 0); err != nil {
			return err
		}
		missing++
	}
	if missing == 0 {
		return nil
	}

	err := b.table.Each(func(rec *domain.PathRecord) error {
		return set.AddPath(&rec.Sample, rec.Exposure)
	})
	if err != nil {
		return fmt.Errorf("failed to scan path table: %w", err)
	}
	if err := set.Reduce(); err != nil {
		return fmt.Errorf("failed to reduce: %w", err)
	}
	for _, key := range set.Keys() {
		r, err := set.Reduced(key)
		if err != nil {
			return err
		}
		b.cache[key] = r
	}

	b.log.Debug().
		Int("fundamentals", missing).
		Int64("paths", set.Paths()).
		Msg("Computed fundamentals")
	return nil
}

// GetMeasure returns measure id at date.
func (b *BatchCalculator) GetMeasure(id MeasureID, date time.Time, confidence float64) (float64, error) {
	def, err := Lookup(id)
	if err != nil {
		return 0, err
	}
	if err := b.ensure(def.Fundamentals()); err != nil {
		return 0, err
	}
	return b.eval.Evaluate(b, id, date, confidence)
}

// Pv returns the per-date expectation of a ratio or spread-product fundamental.
func (b *BatchCalculator) Pv(key acc.Key) ([]float64, error) {
	if key.Kind != acc.KindRatio && key.Kind != acc.KindSpreadProduct {
		return nil, fmt.Errorf("%w: %s is not an expectation", acc.ErrUnknownFundamental, key)
	}
	r, err := b.Reduced(key)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), r.Values...), nil
}

// Sigma returns the per-date standard deviation of a variance fundamental.
func (b *BatchCalculator) Sigma(key acc.Key) ([]float64, error) {
	r, err := b.variance(key)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), r.Values...), nil
}

// StdErr returns the per-date standard error of a variance fundamental.
func (b *BatchCalculator) StdErr(key acc.Key) ([]float64, error) {
	r, err := b.variance(key)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), r.StdErr...), nil
}

func (b *BatchCalculator) variance(key acc.Key) (*acc.Reduced, error) {
	if key.Kind != acc.KindVariance {
		return nil, fmt.Errorf("%w: %s is not a variance", acc.ErrUnknownFundamental, key)
	}
	return b.Reduced(key)
}

// Pfe returns the per-date exposure quantile at confidence.
func (b *BatchCalculator) Pfe(key acc.Key, confidence float64) ([]float64, error) {
	r, err := b.distribution(key)
	if err != nil {
		return nil, err
	}
	return r.Quantiles(confidence)
}

// CollateralPfe returns the per-date collateral quantile at confidence.
func (b *BatchCalculator) CollateralPfe(key acc.Key, confidence float64) ([]float64, error) {
	r, err := b.distribution(key)
	if err != nil {
		return nil, err
	}
	return r.CollateralQuantiles(confidence)
}

func (b *BatchCalculator) distribution(key acc.Key) (*acc.Reduced, error) {
	if key.Kind != acc.KindDistribution {
		return nil, fmt.Errorf("%w: %s is not a distribution", acc.ErrUnknownFundamental, key)
	}
	return b.Reduced(key)
}
