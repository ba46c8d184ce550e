package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure/internal/config"
	"github.com/aristath/exposure/internal/database"
)

// InitializeDatabase opens the exposure database and applies its schema
func InitializeDatabase(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Driver:  database.Driver(cfg.DBDriver),
		Profile: database.ProfileStandard,
		Name:    "exposure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize exposure database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate exposure database: %w", err)
	}

	log.Info().
		Str("path", db.Path()).
		Str("driver", string(db.Driver())).
		Msg("Database initialized")

	return &Container{DB: db}, nil
}
