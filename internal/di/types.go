// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/exposure/internal/database"
	"github.com/aristath/exposure/internal/modules/pathstore"
	"github.com/aristath/exposure/internal/modules/runs"
	runhandlers "github.com/aristath/exposure/internal/modules/runs/handlers"
	"github.com/aristath/exposure/internal/reliability"
	"github.com/aristath/exposure/internal/scheduler"
	"github.com/aristath/exposure/internal/server"
)

// Container holds every wired dependency
type Container struct {
	DB *database.DB

	// Repositories
	PathStore *pathstore.Repository
	RunRepo   *runs.Repository

	// Services
	ReportUploader *reliability.S3ReportUploader // nil when export is disabled
	RunService     *runs.Service
	RunHandlers    *runhandlers.Handler

	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
	Server    *server.Server
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	Recompute   *runs.RecomputeJob // nil when no recompute schedule is set
	Maintenance *reliability.MaintenanceJob
}

// Close releases the database
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
