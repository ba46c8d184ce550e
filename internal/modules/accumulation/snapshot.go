package accumulation

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

type setSnapshot struct {
	Version      int                   `msgpack:"v"`
	Dates        int                   `msgpack:"dates"`
	Paths        int64                 `msgpack:"paths"`
	Accumulators []accumulatorSnapshot `msgpack:"accumulators"`
}

type accumulatorSnapshot struct {
	Key           Key                `msgpack:"key"`
	MinConfidence float64            `msgpack:"min_confidence"`
	Ratio         *ratioState        `msgpack:"ratio,omitempty"`
	Variance      *varianceState     `msgpack:"variance,omitempty"`
	Distribution  *distributionState `msgpack:"distribution,omitempty"`
	Product       *productState      `msgpack:"product,omitempty"`
}

// MarshalBinary encodes the unreduced state of the set with msgpack so a shard
// can be persisted or shipped to another process and merged there.
func (s *Set) MarshalBinary() ([]byte, error) {
	if s.reduced != nil {
		return nil, ErrAlreadyReduced
	}
	snap := setSnapshot{
		Version:      snapshotVersion,
		Dates:        s.dates,
		Paths:        s.paths,
		Accumulators: make([]accumulatorSnapshot, 0, len(s.keys)),
	}
	for _, key := range s.keys {
		acc := s.accs[key]
		snap.Accumulators = append(snap.Accumulators, accumulatorSnapshot{
			Key:           key,
			MinConfidence: acc.minConfidence,
			Ratio:         acc.ratio,
			Variance:      acc.variance,
			Distribution:  acc.distribution,
			Product:       acc.product,
		})
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode accumulator set: %w", err)
	}
	return data, nil
}

// UnmarshalBinary replaces the receiver with a decoded snapshot. The restored
// set is sealed.
func (s *Set) UnmarshalBinary(data []byte) error {
	var snap setSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode accumulator set: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported accumulator snapshot version %d", snap.Version)
	}

	restored := NewSet(snap.Dates)
	restored.paths = snap.Paths
	for _, a := range snap.Accumulators {
		acc := &Accumulator{
			key:           a.Key,
			minConfidence: a.MinConfidence,
			ratio:         a.Ratio,
			variance:      a.Variance,
			distribution:  a.Distribution,
			product:       a.Product,
		}
		if err := acc.validate(snap.Dates); err != nil {
			return err
		}
		if _, dup := restored.accs[a.Key]; dup {
			return fmt.Errorf("duplicate accumulator %s in snapshot", a.Key)
		}
		restored.accs[a.Key] = acc
		restored.keys = append(restored.keys, a.Key)
	}
	restored.sealed = true
	*s = *restored
	return nil
}

// validate checks that a decoded accumulator carries the state of its kind
// with one slot per date.
func (a *Accumulator) validate(dates int) error {
	lengths := func(slices ...int) error {
		for _, n := range slices {
			if n != dates {
				return fmt.Errorf("%w: accumulator %s has %d slots, want %d", ErrDateCountMismatch, a.key, n, dates)
			}
		}
		return nil
	}
	switch a.key.Kind {
	case KindRatio:
		if a.ratio == nil {
			break
		}
		return lengths(len(a.ratio.WeightedExposure), len(a.ratio.Norm))
	case KindVariance:
		if a.variance == nil {
			break
		}
		v := a.variance
		return lengths(len(v.WeightedExposure), len(v.WeightedExposureSquared), len(v.Norm), len(v.Count))
	case KindDistribution:
		if a.distribution == nil {
			break
		}
		d := a.distribution
		return lengths(len(d.Samples), len(d.Mass), len(d.Norm))
	case KindSpreadProduct:
		if a.product == nil {
			break
		}
		p := a.product
		return lengths(len(p.Exposure.WeightedExposure), len(p.Exposure.Norm),
			len(p.Spread.WeightedExposure), len(p.Spread.Norm))
	}
	return fmt.Errorf("%w: snapshot carries no state for %s", ErrUnknownFundamental, a.key)
}
