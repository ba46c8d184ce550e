package domain

import (
	"fmt"
	"time"
)

// KernelIndex selects the integration kernel a measure integrates against.
type KernelIndex int

const (
	KernelCounterpartyDefault KernelIndex = iota
	KernelOwnDefault
	KernelJointSurvival
	KernelNoDefault
)

func (k KernelIndex) String() string {
	switch k {
	case KernelCounterpartyDefault:
		return "counterparty_default"
	case KernelOwnDefault:
		return "own_default"
	case KernelJointSurvival:
		return "joint_survival"
	case KernelNoDefault:
		return "no_default"
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// Kernel discretizes a default or survival measure: Increments[i] is the
// probability mass attributed to the interval ending at Dates[i].
type Kernel struct {
	Dates      []time.Time
	Increments []float64
}

// NewKernel validates and builds a Kernel.
func NewKernel(dates []time.Time, increments []float64) (Kernel, error) {
	if len(dates) != len(increments) {
		return Kernel{}, fmt.Errorf("%w: %d dates but %d increments", ErrInvalidKernel, len(dates), len(increments))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return Kernel{}, fmt.Errorf("%w: dates not strictly increasing at index %d", ErrInvalidKernel, i)
		}
	}
	k := Kernel{
		Dates:      make([]time.Time, len(dates)),
		Increments: make([]float64, len(increments)),
	}
	copy(k.Dates, dates)
	copy(k.Increments, increments)
	return k, nil
}

// Len returns the number of kernel points.
func (k Kernel) Len() int {
	return len(k.Dates)
}

// CreditContext carries the kernels and recovery rates of one counterparty /
// booking-entity pair. Kernels are indexed by KernelIndex; a short slice means
// the corresponding default information was not supplied.
type CreditContext struct {
	Kernels              []Kernel
	CounterpartyRecovery float64
	OwnRecovery          float64
}

// Kernel returns the kernel at idx, or false if it was not supplied.
func (c CreditContext) Kernel(idx KernelIndex) (Kernel, bool) {
	if idx < 0 || int(idx) >= len(c.Kernels) {
		return Kernel{}, false
	}
	return c.Kernels[idx], true
}
