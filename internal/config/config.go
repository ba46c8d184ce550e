// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the database, always absolute
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	// Workers bounds the shards a run accumulates in parallel
	Workers int
	// DBDriver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	DBDriver string
	// MemoryFraction is the share of available memory a run's distribution
	// accumulators may claim
	MemoryFraction float64

	// RecomputeSchedule is a cron expression with seconds; empty disables recompute
	RecomputeSchedule string
	RecomputeTimeout  time.Duration
	// MaintenanceSchedule drives integrity checks and WAL truncation
	MaintenanceSchedule string

	Reports ReportConfig
}

// ReportConfig locates the bucket run reports are exported to.
type ReportConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether report export is configured.
func (r ReportConfig) Enabled() bool {
	return r.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("EXPOSURE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", true),
		Port:                getEnvAsInt("GO_PORT", 8080),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		Workers:             getEnvAsInt("EXPOSURE_WORKERS", runtime.NumCPU()),
		DBDriver:            getEnv("EXPOSURE_DB_DRIVER", "sqlite"),
		MemoryFraction:      getEnvAsFloat("EXPOSURE_MEMORY_FRACTION", 0.5),
		RecomputeSchedule:   getEnv("EXPOSURE_RECOMPUTE_SCHEDULE", ""),
		RecomputeTimeout:    getEnvAsDuration("EXPOSURE_RECOMPUTE_TIMEOUT", 30*time.Minute),
		MaintenanceSchedule: getEnv("EXPOSURE_MAINTENANCE_SCHEDULE", "0 0 3 * * *"),
		Reports: ReportConfig{
			Bucket:    getEnv("EXPOSURE_REPORT_BUCKET", ""),
			Prefix:    getEnv("EXPOSURE_REPORT_PREFIX", "reports/"),
			Region:    getEnv("AWS_REGION", ""),
			Endpoint:  getEnv("EXPOSURE_S3_ENDPOINT", ""),
			AccessKey: getEnv("EXPOSURE_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("EXPOSURE_S3_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath returns the path of the exposure database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "exposure.db")
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("EXPOSURE_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be in 1..65535, got %d", c.Port)
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "sqlite3" {
		return fmt.Errorf("EXPOSURE_DB_DRIVER must be sqlite or sqlite3, got %q", c.DBDriver)
	}
	if c.MemoryFraction <= 0 || c.MemoryFraction > 1 {
		return fmt.Errorf("EXPOSURE_MEMORY_FRACTION must be in (0, 1], got %v", c.MemoryFraction)
	}
	if (c.Reports.AccessKey == "") != (c.Reports.SecretKey == "") {
		return fmt.Errorf("EXPOSURE_S3_ACCESS_KEY and EXPOSURE_S3_SECRET_KEY must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
