package pathstore

import (
	"context"
	"fmt"

	"github.com/aristath/exposure/internal/domain"
)

// Table returns the stored path table of a dataset. Records are streamed from
// the database on every Each; nothing is held in memory between calls.
func (r *Repository) Table(ctx context.Context, id string) (domain.PathTable, error) {
	info, err := r.info(ctx, id)
	if err != nil {
		return nil, err
	}
	return &storedTable{
		repo:      r,
		ctx:       ctx,
		datasetID: id,
		dates:     info.Dates,
		from:      0,
		to:        info.Paths,
	}, nil
}

// storedTable is a window [from, to) of path positions of one dataset.
type storedTable struct {
	repo      *Repository
	ctx       context.Context
	datasetID string
	dates     int
	from, to  int
}

func (t *storedTable) Len() int {
	return t.to - t.from
}

func (t *storedTable) Slice(from, to int) domain.PathTable {
	from = max(from, 0)
	to = min(to, t.Len())
	if from > to {
		from = to
	}
	return &storedTable{
		repo:      t.repo,
		ctx:       t.ctx,
		datasetID: t.datasetID,
		dates:     t.dates,
		from:      t.from + from,
		to:        t.from + to,
	}
}

// Each streams the records ordered by position, assembling one record from
// the consecutive rows of its dates.
func (t *storedTable) Each(fn func(rec *domain.PathRecord) error) error {
	if t.Len() == 0 {
		return nil
	}
	rows, err := t.repo.db.QueryContext(t.ctx, `
		SELECT p.position, p.path_id, p.weight, pp.date_idx,
			pp.rn, pp.rn_cpty, pp.rn_own, pp.rn_survival, pp.discount_factor,
			pp.borrow_spread, pp.lend_spread, pp.own_spread,
			pp.positive, pp.positive_collateral, pp.negative, pp.negative_collateral
		FROM paths p
		JOIN path_points pp ON pp.dataset_id = p.dataset_id AND pp.position = p.position
		WHERE p.dataset_id = ? AND p.position >= ? AND p.position < ?
		ORDER BY p.position, pp.date_idx`,
		t.datasetID, t.from, t.to)
	if err != nil {
		return fmt.Errorf("failed to query paths: %w", err)
	}
	defer rows.Close()

	var rec *domain.PathRecord
	current := -1
	for rows.Next() {
		var position, d int
		var pathID int64
		var weight float64
		var e domain.Exposure
		var rn, rnCpty, rnOwn, rnSurvival, df, borrow, lend, own float64

		if err := rows.Scan(&position, &pathID, &weight, &d,
			&rn, &rnCpty, &rnOwn, &rnSurvival, &df, &borrow, &lend, &own,
			&e.Positive, &e.PositiveCollateral, &e.Negative, &e.NegativeCollateral); err != nil {
			return fmt.Errorf("failed to scan path point: %w", err)
		}
		if d < 0 || d >= t.dates {
			return fmt.Errorf("path %d has date index %d outside %d dates", pathID, d, t.dates)
		}

		if position != current {
			if rec != nil {
				if err := fn(rec); err != nil {
					return err
				}
			}
			rec = newRecord(pathID, weight, t.dates)
			current = position
		}

		s := &rec.Sample
		s.RN[d], s.RNCpty[d], s.RNOwn[d], s.RNSurvival[d] = rn, rnCpty, rnOwn, rnSurvival
		s.DiscountFactor[d] = df
		s.BorrowSpread[d], s.LendSpread[d], s.OwnSpread[d] = borrow, lend, own
		rec.Exposures[d] = e
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating paths: %w", err)
	}
	if rec != nil {
		return fn(rec)
	}
	return nil
}

func newRecord(pathID int64, weight float64, dates int) *domain.PathRecord {
	return &domain.PathRecord{
		Sample: domain.PathSample{
			PathID:         pathID,
			Weight:         weight,
			RN:             make([]float64, dates),
			RNCpty:         make([]float64, dates),
			RNOwn:          make([]float64, dates),
			RNSurvival:     make([]float64, dates),
			DiscountFactor: make([]float64, dates),
			BorrowSpread:   make([]float64, dates),
			LendSpread:     make([]float64, dates),
			OwnSpread:      make([]float64, dates),
		},
		Exposures: make([]domain.Exposure, dates),
	}
}
