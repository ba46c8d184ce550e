package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:             t.TempDir(),
		Port:                8080,
		Workers:             2,
		DBDriver:            "sqlite",
		MemoryFraction:      0.5,
		MaintenanceSchedule: "0 0 3 * * *",
		Reports:             config.ReportConfig{Prefix: "reports/"},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.PathStore)
	assert.NotNil(t, container.RunRepo)
	assert.NotNil(t, container.RunService)
	assert.NotNil(t, container.RunHandlers)
	assert.NotNil(t, container.Server)
	assert.Nil(t, container.ReportUploader)

	require.NotNil(t, container.Jobs)
	assert.NotNil(t, container.Jobs.Maintenance)
	assert.Nil(t, container.Jobs.Recompute)
	require.Len(t, container.Scheduler.Status(), 1)
	assert.Equal(t, "database_maintenance", container.Scheduler.Status()[0].Name)

	rec := httptest.NewRecorder()
	container.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWire_WithRecomputeAndExport(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecomputeSchedule = "0 0 * * * *"
	cfg.Reports = config.ReportConfig{
		Bucket:    "reports",
		Prefix:    "reports/",
		Region:    "auto",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "key",
		SecretKey: "secret",
	}

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.ReportUploader)
	require.NotNil(t, container.Jobs.Recompute)
	assert.Len(t, container.Scheduler.Status(), 2)
}

func TestWire_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecomputeSchedule = "whenever"

	_, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to register jobs")
}
