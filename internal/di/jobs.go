package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/config"
	"github.com/aristath/exposure/internal/modules/runs"
	"github.com/aristath/exposure/internal/reliability"
	"github.com/aristath/exposure/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the background jobs.
// The scheduler is returned unstarted.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	jobs := &JobInstances{
		Maintenance: reliability.NewMaintenanceJob(container.DB, cfg.DataDir, log),
	}

	if cfg.MaintenanceSchedule != "" {
		if err := sched.AddJob(cfg.MaintenanceSchedule, jobs.Maintenance); err != nil {
			return fmt.Errorf("failed to register maintenance job: %w", err)
		}
	}

	if cfg.RecomputeSchedule != "" {
		jobs.Recompute = runs.NewRecomputeJob(container.RunService, cfg.RecomputeTimeout)
		if err := sched.AddJob(cfg.RecomputeSchedule, jobs.Recompute); err != nil {
			return fmt.Errorf("failed to register recompute job: %w", err)
		}
	}

	container.Scheduler = sched
	container.Jobs = jobs
	return nil
}
