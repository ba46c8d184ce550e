package utils

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// ErrMemoryBudgetExceeded is returned when an allocation estimate does not fit
// in the configured share of available memory.
var ErrMemoryBudgetExceeded = errors.New("memory budget exceeded")

// virtualMemory is replaced in tests.
var virtualMemory = mem.VirtualMemory

// CheckMemoryBudget fails when required bytes exceed fraction of the memory
// currently available on the host.
func CheckMemoryBudget(required uint64, fraction float64) error {
	if required == 0 {
		return nil
	}
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("memory fraction %v outside (0, 1]", fraction)
	}
	vm, err := virtualMemory()
	if err != nil {
		return fmt.Errorf("failed to read memory stats: %w", err)
	}
	budget := uint64(float64(vm.Available) * fraction)
	if required > budget {
		return fmt.Errorf("%w: need %d bytes, budget %d of %d available",
			ErrMemoryBudgetExceeded, required, budget, vm.Available)
	}
	return nil
}
