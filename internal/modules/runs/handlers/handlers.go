// Package handlers provides HTTP handlers for datasets, runs and measure queries.
package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/domain"
	acc "github.com/aristath/exposure/internal/modules/accumulation"
	"github.com/aristath/exposure/internal/modules/runs"
	"github.com/aristath/exposure/internal/modules/xva"
	"github.com/aristath/exposure/internal/utils"
)

// Handler handles run HTTP requests
type Handler struct {
	service *runs.Service
	log     zerolog.Logger
}

// NewHandler creates a new run handler
func NewHandler(service *runs.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// MeasureInfo describes one supported measure.
type MeasureInfo struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	NeedsConfidence bool   `json:"needs_confidence"`
	Note            string `json:"note,omitempty"`
}

// HandleListMeasures returns every supported measure
func (h *Handler) HandleListMeasures(w http.ResponseWriter, r *http.Request) {
	defs := xva.Definitions()
	out := make([]MeasureInfo, len(defs))
	for i, def := range defs {
		out[i] = MeasureInfo{ID: int(def.ID), Name: def.Name, NeedsConfidence: def.NeedsConfidence(), Note: def.Note}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"measures": out,
	})
}

// HandleListDatasets returns the stored datasets
func (h *Handler) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.service.Datasets(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
	})
}

// HandleImportDataset stores a simulated dataset
func (h *Handler) HandleImportDataset(w http.ResponseWriter, r *http.Request) {
	var req DatasetPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	grid, credit, table, err := req.Build()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.service.ImportDataset(r.Context(), req.Name, grid, credit, table)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

// HandleDeleteDataset removes a dataset and its runs
func (h *Handler) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDataset(r.Context(), chi.URLParam(r, "datasetID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListDatasetRuns returns the runs of a dataset
func (h *Handler) HandleListDatasetRuns(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), chi.URLParam(r, "datasetID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs": list,
	})
}

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	DatasetID string         `json:"dataset_id"`
	Requests  []runs.Request `json:"requests"`
}

// HandleStartRun runs measure requests over a dataset
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DatasetID == "" {
		h.writeError(w, http.StatusBadRequest, "dataset_id is required")
		return
	}

	run, err := h.service.Start(r.Context(), req.DatasetID, req.Requests)
	if err != nil {
		if run != nil {
			h.writeJSON(w, statusFor(err), map[string]interface{}{
				"error": err.Error(),
				"run":   run,
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, run)
}

// HandleGetRun returns a run
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleGetMeasure evaluates one measure of a run at a date
func (h *Handler) HandleGetMeasure(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	measure := chi.URLParam(r, "measure")

	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		h.writeError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return
	}
	date, err := time.Parse(time.DateOnly, dateParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	confidence := 0.0
	if c := r.URL.Query().Get("confidence"); c != "" {
		confidence, err = strconv.ParseFloat(c, 64)
		if err != nil || math.IsNaN(confidence) || math.IsInf(confidence, 0) {
			h.writeError(w, http.StatusBadRequest, "Invalid confidence")
			return
		}
	}

	value, err := h.service.Measure(r.Context(), runID, measure, date, confidence)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     runID,
		"measure":    measure,
		"date":       dateParam,
		"confidence": confidence,
		"value":      value,
	})
}

// HandleGetReport returns the full report of a run
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleExportReport uploads the report of a run
func (h *Handler) HandleExportReport(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.Export(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"key": key,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runs.ErrRunNotFound), errors.Is(err, runs.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrNoRequests),
		errors.Is(err, xva.ErrMeasureNotSupported),
		errors.Is(err, xva.ErrMeasureNotRegistered),
		errors.Is(err, acc.ErrInvalidConfidence),
		errors.Is(err, acc.ErrConfidenceBelowMinimum),
		errors.Is(err, domain.ErrInvalidGrid),
		errors.Is(err, domain.ErrInvalidKernel):
		return http.StatusBadRequest
	case errors.Is(err, runs.ErrRunNotCompleted):
		return http.StatusConflict
	case errors.Is(err, acc.ErrNoPaths), errors.Is(err, acc.ErrDateCountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, runs.ErrExportDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, utils.ErrMemoryBudgetExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
