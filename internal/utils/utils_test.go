package utils

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
)

func withAvailable(t *testing.T, available uint64, err error) {
	t.Helper()
	orig := virtualMemory
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		if err != nil {
			return nil, err
		}
		return &mem.VirtualMemoryStat{Available: available}, nil
	}
	t.Cleanup(func() { virtualMemory = orig })
}

func TestCheckMemoryBudget(t *testing.T) {
	withAvailable(t, 1000, nil)

	tests := []struct {
		name     string
		required uint64
		fraction float64
		wantErr  error
		anyErr   bool
	}{
		{name: "nothing required", required: 0, fraction: 0.5},
		{name: "fits", required: 500, fraction: 0.5},
		{name: "exceeds", required: 501, fraction: 0.5, wantErr: ErrMemoryBudgetExceeded},
		{name: "whole memory", required: 1000, fraction: 1},
		{name: "bad fraction", required: 1, fraction: 0, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMemoryBudget(tt.required, tt.fraction)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckMemoryBudget_StatsError(t *testing.T) {
	withAvailable(t, 0, errors.New("no /proc"))
	err := CheckMemoryBudget(1, 0.5)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMemoryBudgetExceeded)
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op", zerolog.Nop())
	assert.GreaterOrEqual(t, int64(timer.StopWith(map[string]any{"paths": 3})), int64(0))

	done := MeasureDBQuery("q", zerolog.Nop())
	done(10)
}
