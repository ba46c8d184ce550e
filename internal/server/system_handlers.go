package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/exposure/internal/database"
	"github.com/aristath/exposure/internal/scheduler"
)

var (
	cpuPercent    = cpu.Percent
	virtualMemory = mem.VirtualMemory
)

// SystemHandlers serves health and status endpoints
type SystemHandlers struct {
	db        *database.DB
	scheduler *scheduler.Scheduler
	started   time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(db *database.DB, sched *scheduler.Scheduler, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		scheduler: sched,
		started:   time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// SystemStatus is the payload of /api/system/status
type SystemStatus struct {
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Goroutines    int                   `json:"goroutines"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	MemoryFreeMB  uint64                `json:"memory_available_mb"`
	Database      *database.Stats       `json:"database,omitempty"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
}

// HandleHealth reports whether the database answers
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Msg("Health check failed")
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HandleSystemStatus returns resource usage, database size and job state
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := SystemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Jobs:          []scheduler.JobStatus{},
	}

	// 100ms keeps the endpoint responsive
	if pct, err := cpuPercent(100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(pct) > 0 {
		status.CPUPercent = pct[0]
	}

	if vm, err := virtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		status.MemoryPercent = vm.UsedPercent
		status.MemoryFreeMB = vm.Available / 1024 / 1024
	}

	if h.db != nil {
		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
			status.Status = "degraded"
		}
		status.Database = stats
	}

	if h.scheduler != nil {
		status.Jobs = h.scheduler.Status()
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
