package xva

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
)

// StreamingCalculator accumulates paths one at a time into the fundamentals of
// the registered measures, merges shards, reduces once and then answers
// queries. Measures must be registered before the first path.
//
// A StreamingCalculator is not safe for concurrent use; run one per worker
// through NewShard and merge the results.
type StreamingCalculator struct {
	eval       *Evaluator
	set        *acc.Set
	registered map[MeasureID]float64
	log        zerolog.Logger
}

// NewStreamingCalculator creates a calculator for grid and credit.
func NewStreamingCalculator(grid domain.DateGrid, credit domain.CreditContext, log zerolog.Logger) *StreamingCalculator {
	return &StreamingCalculator{
		eval:       NewEvaluator(grid, credit),
		set:        acc.NewSet(grid.Len()),
		registered: make(map[MeasureID]float64),
		log:        log.With().Str("component", "streaming_calculator").Logger(),
	}
}

// AddMeasureAccumulator registers measure id and the fundamentals it reads.
// Registering the same measure again is a no-op apart from lowering the
// minimum confidence of quantile measures.
func (c *StreamingCalculator) AddMeasureAccumulator(id MeasureID, confidence float64) error {
	def, err := Lookup(id)
	if err != nil {
		return err
	}
	if !def.NeedsConfidence() {
		confidence = 0
	}
	for _, key := range def.Fundamentals() {
		if err := c.set.Register(key, confidence); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	if prev, ok := c.registered[id]; ok {
		confidence = math.Min(prev, confidence)
	}
	c.registered[id] = confidence

	c.log.Debug().
		Str("measure", def.Name).
		Float64("confidence", confidence).
		Int("fundamentals", len(c.set.Keys())).
		Msg("Registered measure")
	return nil
}

// Measures returns the registered measures and their minimum confidences.
func (c *StreamingCalculator) Measures() map[MeasureID]float64 {
	out := make(map[MeasureID]float64, len(c.registered))
	for id, conf := range c.registered {
		out[id] = conf
	}
	return out
}

// Accumulate feeds one path through fn into every registered fundamental.
func (c *StreamingCalculator) Accumulate(p *domain.PathSample, fn domain.ExposureFunc) error {
	return c.set.AddPath(p, fn)
}

// AccumulateRecord feeds a stored path record.
func (c *StreamingCalculator) AccumulateRecord(rec *domain.PathRecord) error {
	return c.set.AddPath(&rec.Sample, rec.Exposure)
}

// Paths returns the number of accumulated paths, merged shards included.
func (c *StreamingCalculator) Paths() int64 {
	return c.set.Paths()
}

// NewShard returns an empty calculator with the same registrations.
func (c *StreamingCalculator) NewShard() *StreamingCalculator {
	return &StreamingCalculator{
		eval:       c.eval,
		set:        c.set.NewShard(),
		registered: c.Measures(),
		log:        c.log,
	}
}

// Merge folds a shard into c. The shard must not be used afterwards.
func (c *StreamingCalculator) Merge(other *StreamingCalculator) error {
	if err := c.set.Merge(other.set); err != nil {
		return fmt.Errorf("failed to merge shard: %w", err)
	}
	c.log.Debug().Int64("paths", c.set.Paths()).Msg("Merged shard")
	return nil
}

// Reduce reduces every fundamental exactly once.
func (c *StreamingCalculator) Reduce() error {
	if err := c.set.Reduce(); err != nil {
		return fmt.Errorf("failed to reduce: %w", err)
	}
	c.log.Debug().
		Int64("paths", c.set.Paths()).
		Int("fundamentals", len(c.set.Keys())).
		Msg("Reduced accumulators")
	return nil
}

// GetMeasure returns measure id at date. It fails with
// accumulation.ErrNotReduced until Reduce has run.
func (c *StreamingCalculator) GetMeasure(id MeasureID, date time.Time, confidence float64) (float64, error) {
	if _, err := Lookup(id); err != nil {
		return 0, err
	}
	if _, ok := c.registered[id]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrMeasureNotRegistered, id)
	}
	if !c.set.IsReduced() {
		return 0, acc.ErrNotReduced
	}
	return c.eval.Evaluate(c.set, id, date, confidence)
}

// Snapshot encodes the unreduced accumulator state.
func (c *StreamingCalculator) Snapshot() ([]byte, error) {
	return c.set.MarshalBinary()
}

// RestoreShard decodes a snapshot taken from a shard of c, ready to be merged.
func (c *StreamingCalculator) RestoreShard(data []byte) (*StreamingCalculator, error) {
	var set acc.Set
	if err := set.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &StreamingCalculator{
		eval:       c.eval,
		set:        &set,
		registered: c.Measures(),
		log:        c.log,
	}, nil
}

// Evaluator returns the evaluator shared with the batch calculator.
func (c *StreamingCalculator) Evaluator() *Evaluator {
	return c.eval
}
