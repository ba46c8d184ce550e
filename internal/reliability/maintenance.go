package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/exposure/internal/database"
)

// minFreeDiskBytes is the free space below which maintenance fails; path
// tables grow by one row per path and date.
const minFreeDiskBytes = 512 << 20

// diskUsage is replaced in tests.
var diskUsage = disk.Usage

// MaintenanceJob checks database integrity, truncates the WAL and verifies
// free disk space under the data directory.
type MaintenanceJob struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Integrity check failed")
		return err
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// non-fatal
		j.log.Warn().Err(err).Str("database", j.db.Name()).Msg("WAL checkpoint failed")
	}

	usage, err := diskUsage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}
	if usage.Free < minFreeDiskBytes {
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space")
		return fmt.Errorf("only %d bytes free under %s", usage.Free, j.dataDir)
	}

	stats, err := j.db.GetStats()
	if err != nil {
		return err
	}
	j.log.Info().
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_size_bytes", stats.WALSizeBytes).
		Uint64("disk_free_bytes", usage.Free).
		Dur("duration_ms", time.Since(start)).
		Msg("Database maintenance completed")
	return nil
}
