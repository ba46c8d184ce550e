// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus reports the last execution of a registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"last_run,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	Running  bool      `json:"running"`
}

type entry struct {
	id       cron.EntryID
	job      Job
	schedule string
	lastRun  time.Time
	lastErr  error
	running  bool
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries []*entry
}

// New creates a new scheduler. Schedules carry a seconds field.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule
// Schedule examples:
//   - "0 */15 * * * *"  - Every 15 minutes
//   - "@hourly"         - Every hour
//   - "0 30 6 * * *"    - 06:30 every day
//   - "@every 30s"      - Every 30 seconds
//
// A run that is still going when the next tick fires is skipped.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	e := &entry{job: job, schedule: schedule}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.execute(e)
	}))
	id, err := s.cron.AddJob(schedule, wrapped)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	e.id = id

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

func (s *Scheduler) execute(e *entry) {
	s.mu.Lock()
	e.running = true
	s.mu.Unlock()

	s.log.Debug().Str("job", e.job.Name()).Msg("Running job")
	err := e.job.Run()
	if err != nil {
		s.log.Error().Err(err).Str("job", e.job.Name()).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", e.job.Name()).Msg("Job completed")
	}

	s.mu.Lock()
	e.running = false
	e.lastRun = time.Now()
	e.lastErr = err
	s.mu.Unlock()
}

// Status returns the state of every registered job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, len(s.entries))
	for i, e := range s.entries {
		st := JobStatus{
			Name:     e.job.Name(),
			Schedule: e.schedule,
			LastRun:  e.lastRun,
			NextRun:  s.cron.Entry(e.id).Next,
			Running:  e.running,
		}
		if e.lastErr != nil {
			st.LastErr = e.lastErr.Error()
		}
		out[i] = st
	}
	return out
}
