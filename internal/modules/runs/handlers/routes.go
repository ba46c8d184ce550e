package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes registers the measure, dataset and run routes. The server
// mounts them under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/measures", h.HandleListMeasures)

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", h.HandleListDatasets)
		r.Post("/", h.HandleImportDataset)
		r.Delete("/{datasetID}", h.HandleDeleteDataset)
		r.Get("/{datasetID}/runs", h.HandleListDatasetRuns)
	})

	r.Route("/runs", func(r chi.Router) {
		// runs accumulate the whole dataset before answering
		r.With(middleware.Timeout(10*time.Minute)).Post("/", h.HandleStartRun)

		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", h.HandleGetRun)
			r.Get("/measures/{measure}", h.HandleGetMeasure)
			r.Get("/report", h.HandleGetReport)
			r.Post("/export", h.HandleExportReport)
		})
	})
}
