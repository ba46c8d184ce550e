package runs

import (
	"context"
	"time"
)

// RecomputeJob re-runs the latest requests of every dataset on a schedule.
type RecomputeJob struct {
	service *Service
	timeout time.Duration
}

// NewRecomputeJob creates the job. A zero timeout means no deadline.
func NewRecomputeJob(service *Service, timeout time.Duration) *RecomputeJob {
	return &RecomputeJob{service: service, timeout: timeout}
}

// Name returns the job name.
func (j *RecomputeJob) Name() string {
	return "recompute_runs"
}

// Run executes the job.
func (j *RecomputeJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	_, err := j.service.RecomputeAll(ctx)
	return err
}
