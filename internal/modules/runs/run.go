// Package runs executes measure requests against stored datasets and serves
// the results: point queries, full reports and report export.
package runs

import (
	"errors"
	"time"

	"github.com/aristath/exposure/internal/modules/pathstore"
)

var (
	// ErrRunNotFound is returned for unknown run identifiers.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotCompleted is returned when results of a failed or running run are queried.
	ErrRunNotCompleted = errors.New("run not completed")
	// ErrNoRequests is returned when a run is started without measures.
	ErrNoRequests = errors.New("no measure requests")
	// ErrExportDisabled is returned by Export when no uploader is configured.
	ErrExportDisabled = errors.New("report export not configured")
	// ErrDatasetNotFound matches pathstore.ErrDatasetNotFound.
	ErrDatasetNotFound = pathstore.ErrDatasetNotFound
)

// Request asks for one measure. Confidence is read by quantile measures only.
type Request struct {
	Measure    string  `json:"measure"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one execution of a set of requests over a dataset.
type Run struct {
	ID          string     `json:"id"`
	DatasetID   string     `json:"dataset_id"`
	Requests    []Request  `json:"requests"`
	Status      Status     `json:"status"`
	Paths       int64      `json:"paths"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MeasureReport is one requested measure evaluated on the whole exposure grid.
type MeasureReport struct {
	Measure    string    `json:"measure"`
	Confidence float64   `json:"confidence,omitempty"`
	Values     []float64 `json:"values"`
	// Value is the measure at the last exposure date.
	Value float64 `json:"value"`
}

// Report is the full result of a run.
type Report struct {
	RunID       string          `json:"run_id"`
	DatasetID   string          `json:"dataset_id"`
	AsOf        time.Time       `json:"as_of"`
	Dates       []time.Time     `json:"dates"`
	Paths       int64           `json:"paths"`
	Measures    []MeasureReport `json:"measures"`
	GeneratedAt time.Time       `json:"generated_at"`
}
