package accumulation

import (
	"fmt"
	"math"

	"github.com/aristath/exposure/internal/domain"
)

// Set owns the fundamental accumulators of one computation run. Keys are
// deduplicated at registration, so measures sharing a fundamental share one
// accumulator and each path is accumulated into it exactly once.
//
// A Set is not safe for concurrent use. Parallel runs give each worker its own
// shard from NewShard and merge the shards afterwards.
type Set struct {
	dates  int
	keys   []Key
	accs   map[Key]*Accumulator
	paths  int64
	sealed bool

	reduced map[Key]*Reduced
}

// NewSet creates an empty set for a grid with the given number of exposure dates.
func NewSet(dates int) *Set {
	return &Set{
		dates: dates,
		accs:  make(map[Key]*Accumulator),
	}
}

// Dates returns the number of exposure dates every accumulator covers.
func (s *Set) Dates() int {
	return s.dates
}

// Register adds the accumulator for key if it does not exist yet. For
// distribution keys confidence is the lowest quantile the caller will query;
// the set keeps the minimum over all registrations. confidence is ignored for
// the other kinds.
func (s *Set) Register(key Key, confidence float64) error {
	if s.reduced != nil {
		return ErrAlreadyReduced
	}
	if key.Kind == KindDistribution && (confidence < 0 || confidence > 1 || math.IsNaN(confidence)) {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, confidence)
	}

	// samples are only trimmed at reduction, so an existing distribution can
	// still lower its confidence after accumulation has started
	if acc, ok := s.accs[key]; ok {
		if key.Kind == KindDistribution {
			acc.minConfidence = math.Min(acc.minConfidence, confidence)
		}
		return nil
	}
	if s.sealed {
		return fmt.Errorf("%w: %s", ErrRegistrationClosed, key)
	}

	acc, err := newAccumulator(key, s.dates)
	if err != nil {
		return err
	}
	if key.Kind == KindDistribution {
		acc.minConfidence = confidence
	}
	s.accs[key] = acc
	s.keys = append(s.keys, key)
	return nil
}

// Keys returns the registered keys in registration order.
func (s *Set) Keys() []Key {
	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Has reports whether key is registered.
func (s *Set) Has(key Key) bool {
	_, ok := s.accs[key]
	return ok
}

// MinConfidence returns the minimum confidence registered for a distribution key.
func (s *Set) MinConfidence(key Key) (float64, bool) {
	acc, ok := s.accs[key]
	if !ok || key.Kind != KindDistribution {
		return 0, false
	}
	return acc.minConfidence, true
}

// NewShard returns an empty set with the same registrations. The shard is
// sealed: its accumulators must match the parent's for Merge to succeed.
func (s *Set) NewShard() *Set {
	shard := NewSet(s.dates)
	for _, key := range s.keys {
		// registration cannot fail for keys that were already accepted
		acc, _ := newAccumulator(key, s.dates)
		acc.minConfidence = s.accs[key].minConfidence
		shard.accs[key] = acc
		shard.keys = append(shard.keys, key)
	}
	shard.sealed = true
	return shard
}

// Paths returns the number of paths accumulated into the set, including merged shards.
func (s *Set) Paths() int64 {
	return s.paths
}

// AddPath accumulates one path: the exposure function is called once per date
// and the result is fed to every registered accumulator.
func (s *Set) AddPath(p *domain.PathSample, fn domain.ExposureFunc) error {
	if s.reduced != nil {
		return ErrAlreadyReduced
	}
	if err := s.checkStreams(p); err != nil {
		return err
	}
	s.sealed = true

	accs := make([]*Accumulator, len(s.keys))
	for i, key := range s.keys {
		accs[i] = s.accs[key]
	}
	for d := 0; d < s.dates; d++ {
		e := fn(p, d)
		for _, acc := range accs {
			acc.add(p, d, e)
		}
	}
	s.paths++
	return nil
}

// checkStreams verifies every stream the registered keys read has one entry per date.
func (s *Set) checkStreams(p *domain.PathSample) error {
	check := func(name string, stream []float64) error {
		if len(stream) != s.dates {
			return fmt.Errorf("%w: path %d %s has %d entries, want %d",
				ErrDateCountMismatch, p.PathID, name, len(stream), s.dates)
		}
		return nil
	}
	if err := check("discount factor", p.DiscountFactor); err != nil {
		return err
	}
	if err := check("rn", p.RN); err != nil {
		return err
	}

	var weightings [4]bool
	var spreads [4]bool
	for _, key := range s.keys {
		weightings[key.Weighting] = true
		spreads[key.Spread] = true
	}
	streams := []struct {
		need   bool
		name   string
		stream []float64
	}{
		{weightings[CptyRn], "rn cpty", p.RNCpty},
		{weightings[OwnRn], "rn own", p.RNOwn},
		{weightings[FundingRn], "rn survival", p.RNSurvival},
		{spreads[BorrowSpread], "borrow spread", p.BorrowSpread},
		{spreads[LendSpread], "lend spread", p.LendSpread},
		{spreads[OwnSpread], "own spread", p.OwnSpread},
	}
	for _, st := range streams {
		if !st.need {
			continue
		}
		if err := check(st.name, st.stream); err != nil {
			return err
		}
	}
	return nil
}

// Merge folds other into s. Both sets must hold the same keys over the same
// number of dates and neither may be reduced. other must not be used afterwards.
func (s *Set) Merge(other *Set) error {
	if s.reduced != nil || other.reduced != nil {
		return ErrAlreadyReduced
	}
	if err := s.compatible(other); err != nil {
		return err
	}
	for _, key := range s.keys {
		s.accs[key].merge(other.accs[key])
	}
	s.paths += other.paths
	s.sealed = true
	return nil
}

func (s *Set) compatible(other *Set) error {
	if s.dates != other.dates {
		return fmt.Errorf("%w: %d dates vs %d", ErrIncompatibleMerge, s.dates, other.dates)
	}
	if len(s.keys) != len(other.keys) {
		return fmt.Errorf("%w: %d accumulators vs %d", ErrIncompatibleMerge, len(s.keys), len(other.keys))
	}
	for _, key := range s.keys {
		if _, ok := other.accs[key]; !ok {
			return fmt.Errorf("%w: %s missing from other set", ErrIncompatibleMerge, key)
		}
	}
	return nil
}

// Reduce turns every accumulator into its per-date statistics. It runs once;
// the raw path state is released afterwards.
func (s *Set) Reduce() error {
	if s.reduced != nil {
		return ErrAlreadyReduced
	}
	if s.paths == 0 {
		return ErrNoPaths
	}
	reduced := make(map[Key]*Reduced, len(s.keys))
	for _, key := range s.keys {
		reduced[key] = s.accs[key].reduce()
	}
	s.reduced = reduced
	s.sealed = true
	return nil
}

// IsReduced reports whether Reduce has run.
func (s *Set) IsReduced() bool {
	return s.reduced != nil
}

// Reduced returns the reduced statistics of key.
func (s *Set) Reduced(key Key) (*Reduced, error) {
	if s.reduced == nil {
		return nil, ErrNotReduced
	}
	r, ok := s.reduced[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFundamental, key)
	}
	return r, nil
}
