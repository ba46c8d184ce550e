package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
	"github.com/aristath/exposure/internal/modules/pathstore"
	"github.com/aristath/exposure/internal/modules/xva"
	"github.com/aristath/exposure/internal/utils"
)

// sampleBytes is the in-memory size of one accumulation.Sample.
const sampleBytes = 24

// ReportUploader stores exported reports.
type ReportUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Options tunes a Service.
type Options struct {
	// Workers bounds the shards accumulated in parallel.
	Workers int
	// MemoryFraction is the share of available memory distribution
	// accumulators may claim.
	MemoryFraction float64
	// Uploader receives exported reports; nil disables Export.
	Uploader     ReportUploader
	ReportPrefix string
	// MaxCachedRuns bounds the reduced calculators kept in memory.
	MaxCachedRuns int
}

type result struct {
	run  Run
	calc *xva.StreamingCalculator
}

// Service runs measure requests over stored datasets.
type Service struct {
	store *pathstore.Repository
	repo  *Repository
	opts  Options
	log   zerolog.Logger

	mu      sync.RWMutex
	results map[string]*result
	order   []string
}

// NewService creates a run service.
func NewService(store *pathstore.Repository, repo *Repository, opts Options, log zerolog.Logger) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MemoryFraction <= 0 || opts.MemoryFraction > 1 {
		opts.MemoryFraction = 0.5
	}
	if opts.MaxCachedRuns < 1 {
		opts.MaxCachedRuns = 16
	}
	return &Service{
		store:   store,
		repo:    repo,
		opts:    opts,
		log:     log.With().Str("component", "runs").Logger(),
		results: make(map[string]*result),
	}
}

// Datasets lists the stored datasets.
func (s *Service) Datasets(ctx context.Context) ([]pathstore.DatasetInfo, error) {
	return s.store.ListDatasets(ctx)
}

// ImportDataset stores a simulated dataset so runs can be started on it.
func (s *Service) ImportDataset(ctx context.Context, name string, grid domain.DateGrid, credit domain.CreditContext, table domain.PathTable) (*pathstore.DatasetInfo, error) {
	return s.store.SaveDataset(ctx, name, grid, credit, table)
}

// DeleteDataset removes a dataset together with its runs.
func (s *Service) DeleteDataset(ctx context.Context, datasetID string) error {
	if err := s.store.DeleteDataset(ctx, datasetID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.results[id].run.DatasetID == datasetID {
			delete(s.results, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

// Start runs requests over the dataset and waits for the result. A run that
// fails during accumulation is recorded with StatusFailed and returned
// together with the error.
func (s *Service) Start(ctx context.Context, datasetID string, requests []Request) (*Run, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}

	ds, seed, err := s.prepare(ctx, datasetID, requests)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:        uuid.New().String(),
		DatasetID: datasetID,
		Requests:  requests,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, &run); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("run_id", run.ID).
		Str("dataset_id", datasetID).
		Int("requests", len(requests)).
		Int("paths", ds.Info.Paths).
		Msg("Run started")

	calc, runErr := s.execute(ctx, datasetID, seed)

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = StatusCompleted
		run.Paths = calc.Paths()
	}
	// record the outcome even when ctx was cancelled mid-run
	if err := s.repo.Finish(context.WithoutCancel(ctx), &run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record run outcome")
	}

	if runErr != nil {
		s.log.Error().Err(runErr).Str("run_id", run.ID).Msg("Run failed")
		return &run, runErr
	}
	s.cache(&result{run: run, calc: calc})
	s.log.Info().
		Str("run_id", run.ID).
		Int64("paths", run.Paths).
		Dur("duration", completed.Sub(run.CreatedAt)).
		Msg("Run completed")
	return &run, nil
}

// prepare loads the dataset, registers every request and checks the memory
// the distribution accumulators will need.
func (s *Service) prepare(ctx context.Context, datasetID string, requests []Request) (*pathstore.Dataset, *xva.StreamingCalculator, error) {
	ids := make([]xva.MeasureID, len(requests))
	for i, req := range requests {
		id, err := xva.ParseMeasure(req.Measure)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = id
	}

	ds, err := s.store.LoadDataset(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}

	seed := xva.NewStreamingCalculator(ds.Grid, ds.Credit, s.log)
	distributions := make(map[acc.Key]bool)
	for i, id := range ids {
		if err := seed.AddMeasureAccumulator(id, requests[i].Confidence); err != nil {
			return nil, nil, err
		}
		def, _ := xva.Lookup(id)
		for _, key := range def.Fundamentals() {
			if key.Kind == acc.KindDistribution {
				distributions[key] = true
			}
		}
	}

	required := uint64(len(distributions)) * uint64(ds.Info.Paths) * uint64(ds.Info.Dates) * sampleBytes
	if err := utils.CheckMemoryBudget(required, s.opts.MemoryFraction); err != nil {
		return nil, nil, err
	}
	return ds, seed, nil
}

func (s *Service) execute(ctx context.Context, datasetID string, seed *xva.StreamingCalculator) (*xva.StreamingCalculator, error) {
	table, err := s.store.Table(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return xva.RunSharded(ctx, seed, table, s.opts.Workers, s.log)
}

func (s *Service) cache(r *result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.run.ID]; !ok {
		s.order = append(s.order, r.run.ID)
	}
	s.results[r.run.ID] = r
	for len(s.order) > s.opts.MaxCachedRuns {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	r, ok := s.results[runID]
	s.mu.RUnlock()
	if ok {
		run := r.run
		return &run, nil
	}
	return s.repo.Get(ctx, runID)
}

// List returns the runs of a dataset, or every run for an empty datasetID.
func (s *Service) List(ctx context.Context, datasetID string) ([]Run, error) {
	return s.repo.List(ctx, datasetID)
}

// result returns the reduced calculator of a completed run, replaying the run
// when it was evicted from memory.
func (s *Service) result(ctx context.Context, runID string) (*result, error) {
	s.mu.RLock()
	r, ok := s.results[runID]
	s.mu.RUnlock()
	if ok {
		return r, nil
	}

	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotCompleted, runID, run.Status)
	}

	s.log.Info().Str("run_id", runID).Msg("Replaying run")
	_, seed, err := s.prepare(ctx, run.DatasetID, run.Requests)
	if err != nil {
		return nil, fmt.Errorf("failed to replay run %s: %w", runID, err)
	}
	calc, err := s.execute(ctx, run.DatasetID, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to replay run %s: %w", runID, err)
	}
	r = &result{run: *run, calc: calc}
	s.cache(r)
	return r, nil
}

// Measure evaluates a registered measure of a completed run at date. A zero
// confidence selects the confidence the measure was requested with.
func (s *Service) Measure(ctx context.Context, runID, measure string, date time.Time, confidence float64) (float64, error) {
	id, err := xva.ParseMeasure(measure)
	if err != nil {
		return 0, err
	}
	r, err := s.result(ctx, runID)
	if err != nil {
		return 0, err
	}
	if confidence == 0 {
		confidence = r.calc.Measures()[id]
	}
	return r.calc.GetMeasure(id, date, confidence)
}

// Report evaluates every request of a completed run at every exposure date.
func (s *Service) Report(ctx context.Context, runID string) (*Report, error) {
	r, err := s.result(ctx, runID)
	if err != nil {
		return nil, err
	}
	grid := r.calc.Evaluator().Grid()

	report := &Report{
		RunID:       r.run.ID,
		DatasetID:   r.run.DatasetID,
		AsOf:        grid.AsOf,
		Dates:       grid.Dates,
		Paths:       r.calc.Paths(),
		GeneratedAt: time.Now().UTC(),
	}
	for _, req := range r.run.Requests {
		id, err := xva.ParseMeasure(req.Measure)
		if err != nil {
			return nil, err
		}
		def, _ := xva.Lookup(id)
		confidence := 0.0
		if def.NeedsConfidence() {
			confidence = req.Confidence
		}

		values := make([]float64, grid.Len())
		for d, date := range grid.Dates {
			v, err := r.calc.GetMeasure(id, date, confidence)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate %s at %s: %w", def.Name, date.Format(time.DateOnly), err)
			}
			values[d] = v
		}
		report.Measures = append(report.Measures, MeasureReport{
			Measure:    def.Name,
			Confidence: confidence,
			Values:     values,
			Value:      values[len(values)-1],
		})
	}
	return report, nil
}

// Export uploads the JSON report of a run and returns its object key.
func (s *Service) Export(ctx context.Context, runID string) (string, error) {
	if s.opts.Uploader == nil {
		return "", ErrExportDisabled
	}
	report, err := s.Report(ctx, runID)
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	key := path.Join(s.opts.ReportPrefix, report.DatasetID, report.RunID+".json")
	if err := s.opts.Uploader.Upload(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	s.log.Info().Str("run_id", runID).Str("key", key).Int("bytes", len(body)).Msg("Report exported")
	return key, nil
}

// RecomputeAll re-runs the latest requests of every dataset and returns the
// number of runs that completed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	latest, err := s.repo.LatestPerDataset(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	completed := 0
	for _, prev := range latest {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Start(ctx, prev.DatasetID, prev.Requests); err != nil {
			errs = append(errs, fmt.Errorf("dataset %s: %w", prev.DatasetID, err))
			continue
		}
		completed++
	}

	s.log.Info().
		Int("datasets", len(latest)).
		Int("completed", completed).
		Int("failed", len(errs)).
		Msg("Recomputed runs")
	return completed, errors.Join(errs...)
}
