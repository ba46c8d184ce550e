package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/config"
	"github.com/aristath/exposure/internal/modules/pathstore"
	"github.com/aristath/exposure/internal/modules/runs"
	runhandlers "github.com/aristath/exposure/internal/modules/runs/handlers"
	"github.com/aristath/exposure/internal/reliability"
	"github.com/aristath/exposure/internal/server"
)

// InitializeRepositories creates the repositories over the open database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	container.PathStore = pathstore.NewRepository(container.DB.Conn(), log)
	container.RunRepo = runs.NewRepository(container.DB.Conn(), log)
	return nil
}

// InitializeServices creates the run service, the optional report uploader
// and the HTTP layer
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	opts := runs.Options{
		Workers:        cfg.Workers,
		MemoryFraction: cfg.MemoryFraction,
		ReportPrefix:   cfg.Reports.Prefix,
	}

	if cfg.Reports.Enabled() {
		uploader, err := reliability.NewS3ReportUploader(ctx, reliability.S3Config{
			Bucket:    cfg.Reports.Bucket,
			Region:    cfg.Reports.Region,
			Endpoint:  cfg.Reports.Endpoint,
			AccessKey: cfg.Reports.AccessKey,
			SecretKey: cfg.Reports.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create report uploader: %w", err)
		}
		container.ReportUploader = uploader
		opts.Uploader = uploader
	} else {
		log.Info().Msg("Report bucket not configured, export disabled")
	}

	container.RunService = runs.NewService(container.PathStore, container.RunRepo, opts, log)
	container.RunHandlers = runhandlers.NewHandler(container.RunService, log)
	return nil
}

// InitializeServer builds the HTTP server once jobs are registered
func InitializeServer(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.Server = server.New(server.Config{
		Log:         log,
		DB:          container.DB,
		RunHandlers: container.RunHandlers,
		Scheduler:   container.Scheduler,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})
}
