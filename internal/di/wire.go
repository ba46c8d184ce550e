package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Open and migrate the database
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
// 5. Build the HTTP server
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	InitializeServer(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
