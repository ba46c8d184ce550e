package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository persists run metadata
// Database: exposure.db (runs table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Insert stores a new run.
func (r *Repository) Insert(ctx context.Context, run *Run) error {
	requests, err := json.Marshal(run.Requests)
	if err != nil {
		return fmt.Errorf("failed to marshal requests: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, dataset_id, requests, status, paths, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetID, string(requests), string(run.Status), run.Paths,
		nullString(run.Error), run.CreatedAt.Unix(), nullUnix(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (r *Repository) Finish(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, paths = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(run.Status), run.Paths, nullString(run.Error), nullUnix(run.CompletedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// Get returns a run by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, dataset_id, requests, status, paths, error, created_at, completed_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// List returns the runs of a dataset, newest first. An empty datasetID lists
// every run.
func (r *Repository) List(ctx context.Context, datasetID string) ([]Run, error) {
	query := `
		SELECT id, dataset_id, requests, status, paths, error, created_at, completed_at
		FROM runs`
	var args []any
	if datasetID != "" {
		query += " WHERE dataset_id = ?"
		args = append(args, datasetID)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// LatestPerDataset returns the most recent run of every dataset.
func (r *Repository) LatestPerDataset(ctx context.Context) ([]Run, error) {
	all, err := r.List(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []Run
	for _, run := range all {
		if seen[run.DatasetID] {
			continue
		}
		seen[run.DatasetID] = true
		out = append(out, run)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var requests, status string
	var errText sql.NullString
	var created int64
	var completed sql.NullInt64

	if err := row.Scan(&run.ID, &run.DatasetID, &requests, &status, &run.Paths,
		&errText, &created, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(requests), &run.Requests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requests of run %s: %w", run.ID, err)
	}
	run.Status = Status(status)
	run.Error = errText.String
	run.CreatedAt = time.Unix(created, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		run.CompletedAt = &t
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
