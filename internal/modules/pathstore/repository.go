// Package pathstore persists simulation datasets (exposure grid, credit
// kernels and the materialized path table) so batch calculators and runs can
// be served from disk.
package pathstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/database"
	"github.com/aristath/exposure/internal/domain"
	"github.com/aristath/exposure/internal/utils"
)

// ErrDatasetNotFound is returned for unknown dataset identifiers.
var ErrDatasetNotFound = errors.New("dataset not found")

// DatasetInfo describes a stored dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AsOf      time.Time `json:"as_of"`
	Paths     int       `json:"paths"`
	Dates     int       `json:"dates"`
	CreatedAt time.Time `json:"created_at"`
}

// Dataset is a stored dataset without its path table.
type Dataset struct {
	Info   DatasetInfo
	Grid   domain.DateGrid
	Credit domain.CreditContext
}

// Repository handles dataset storage
// Database: exposure.db (datasets, exposure_dates, kernels, paths, path_points)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new path store repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "pathstore").Logger(),
	}
}

// SaveDataset stores grid, credit and every record of table under a new
// dataset identifier in a single transaction.
func (r *Repository) SaveDataset(ctx context.Context, name string, grid domain.DateGrid, credit domain.CreditContext, table domain.PathTable) (*DatasetInfo, error) {
	info := &DatasetInfo{
		ID:        uuid.New().String(),
		Name:      name,
		AsOf:      grid.AsOf.UTC(),
		Paths:     table.Len(),
		Dates:     grid.Len(),
		CreatedAt: time.Now().UTC(),
	}
	done := utils.MeasureDBQuery("save_dataset", r.log)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO datasets (id, name, as_of, counterparty_recovery, own_recovery, path_count, date_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			info.ID, info.Name, info.AsOf.Unix(), credit.CounterpartyRecovery, credit.OwnRecovery,
			info.Paths, info.Dates, info.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert dataset: %w", err)
		}

		for i, d := range grid.Dates {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO exposure_dates (dataset_id, idx, date) VALUES (?, ?, ?)",
				info.ID, i, d.UTC().Unix()); err != nil {
				return fmt.Errorf("failed to insert exposure date: %w", err)
			}
		}

		for ki, k := range credit.Kernels {
			for i, d := range k.Dates {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO kernels (dataset_id, kernel_index, idx, date, increment) VALUES (?, ?, ?, ?, ?)",
					info.ID, ki, i, d.UTC().Unix(), k.Increments[i]); err != nil {
					return fmt.Errorf("failed to insert kernel %s: %w", domain.KernelIndex(ki), err)
				}
			}
		}

		return r.insertPaths(ctx, tx, info.ID, grid.Len(), table)
	})
	if err != nil {
		return nil, err
	}
	done(int64(info.Paths * info.Dates))

	r.log.Info().
		Str("dataset_id", info.ID).
		Str("name", name).
		Int("paths", info.Paths).
		Int("dates", info.Dates).
		Msg("Stored dataset")
	return info, nil
}

func (r *Repository) insertPaths(ctx context.Context, tx *sql.Tx, datasetID string, dates int, table domain.PathTable) error {
	pathStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO paths (dataset_id, position, path_id, weight) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare path insert: %w", err)
	}
	defer pathStmt.Close()

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO path_points (
			dataset_id, position, date_idx,
			rn, rn_cpty, rn_own, rn_survival, discount_factor,
			borrow_spread, lend_spread, own_spread,
			positive, positive_collateral, negative, negative_collateral
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare path point insert: %w", err)
	}
	defer pointStmt.Close()

	position := 0
	return table.Each(func(rec *domain.PathRecord) error {
		p := &rec.Sample
		if p.Dates() != dates {
			return fmt.Errorf("path %d has %d dates, want %d", p.PathID, p.Dates(), dates)
		}
		if _, err := pathStmt.ExecContext(ctx, datasetID, position, p.PathID, p.Weight); err != nil {
			return fmt.Errorf("failed to insert path %d: %w", p.PathID, err)
		}
		for d := 0; d < dates; d++ {
			e := rec.Exposure(p, d)
			_, err := pointStmt.ExecContext(ctx, datasetID, position, d,
				at(p.RN, d), at(p.RNCpty, d), at(p.RNOwn, d), at(p.RNSurvival, d), p.DiscountFactor[d],
				at(p.BorrowSpread, d), at(p.LendSpread, d), at(p.OwnSpread, d),
				e.Positive, e.PositiveCollateral, e.Negative, e.NegativeCollateral)
			if err != nil {
				return fmt.Errorf("failed to insert path %d date %d: %w", p.PathID, d, err)
			}
		}
		position++
		return nil
	})
}

// at reads an optional stream; streams a path does not carry are stored as 0.
func at(stream []float64, d int) float64 {
	if d < len(stream) {
		return stream[d]
	}
	return 0
}

// LoadDataset returns the grid and credit context of a stored dataset.
func (r *Repository) LoadDataset(ctx context.Context, id string) (*Dataset, error) {
	info, err := r.info(ctx, id)
	if err != nil {
		return nil, err
	}
	var cptyRecovery, ownRecovery float64
	if err := r.db.QueryRowContext(ctx,
		"SELECT counterparty_recovery, own_recovery FROM datasets WHERE id = ?", id,
	).Scan(&cptyRecovery, &ownRecovery); err != nil {
		return nil, fmt.Errorf("failed to load recoveries: %w", err)
	}

	dates, err := r.exposureDates(ctx, id)
	if err != nil {
		return nil, err
	}
	grid, err := domain.NewDateGrid(info.AsOf, dates)
	if err != nil {
		return nil, fmt.Errorf("stored dataset %s: %w", id, err)
	}

	kernels, err := r.kernels(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Info: *info,
		Grid: grid,
		Credit: domain.CreditContext{
			Kernels:              kernels,
			CounterpartyRecovery: cptyRecovery,
			OwnRecovery:          ownRecovery,
		},
	}, nil
}

func (r *Repository) info(ctx context.Context, id string) (*DatasetInfo, error) {
	var info DatasetInfo
	var asOf, created int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, as_of, path_count, date_count, created_at FROM datasets WHERE id = ?", id,
	).Scan(&info.ID, &info.Name, &asOf, &info.Paths, &info.Dates, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}
	info.AsOf = time.Unix(asOf, 0).UTC()
	info.CreatedAt = time.Unix(created, 0).UTC()
	return &info, nil
}

func (r *Repository) exposureDates(ctx context.Context, id string) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT date FROM exposure_dates WHERE dataset_id = ? ORDER BY idx", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query exposure dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var unix int64
		if err := rows.Scan(&unix); err != nil {
			return nil, fmt.Errorf("failed to scan exposure date: %w", err)
		}
		dates = append(dates, time.Unix(unix, 0).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exposure dates: %w", err)
	}
	return dates, nil
}

func (r *Repository) kernels(ctx context.Context, id string) ([]domain.Kernel, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT kernel_index, date, increment FROM kernels WHERE dataset_id = ? ORDER BY kernel_index, idx", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query kernels: %w", err)
	}
	defer rows.Close()

	var kernels []domain.Kernel
	for rows.Next() {
		var idx int
		var unix int64
		var inc float64
		if err := rows.Scan(&idx, &unix, &inc); err != nil {
			return nil, fmt.Errorf("failed to scan kernel point: %w", err)
		}
		for len(kernels) <= idx {
			kernels = append(kernels, domain.Kernel{})
		}
		kernels[idx].Dates = append(kernels[idx].Dates, time.Unix(unix, 0).UTC())
		kernels[idx].Increments = append(kernels[idx].Increments, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kernels: %w", err)
	}
	return kernels, nil
}

// ListDatasets returns every stored dataset, newest first.
func (r *Repository) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, as_of, path_count, date_count, created_at FROM datasets ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		var asOf, created int64
		if err := rows.Scan(&info.ID, &info.Name, &asOf, &info.Paths, &info.Dates, &created); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		info.AsOf = time.Unix(asOf, 0).UTC()
		info.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}
	return out, nil
}

// DeleteDataset removes a dataset and everything stored under it.
func (r *Repository) DeleteDataset(ctx context.Context, id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		// path_points reference paths, delete them first for drivers with
		// foreign keys disabled
		for _, table := range []string{"path_points", "paths", "kernels", "exposure_dates", "runs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE dataset_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete dataset: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return nil
	})
}
