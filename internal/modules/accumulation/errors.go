package accumulation

import "errors"

var (
	ErrRegistrationClosed     = errors.New("accumulator registration closed after first path")
	ErrAlreadyReduced         = errors.New("accumulator set already reduced")
	ErrNotReduced             = errors.New("accumulator set not reduced")
	ErrNoPaths                = errors.New("no paths accumulated")
	ErrIncompatibleMerge      = errors.New("incompatible accumulator sets")
	ErrUnknownFundamental     = errors.New("unknown fundamental accumulator")
	ErrConfidenceBelowMinimum = errors.New("confidence below accumulated minimum")
	ErrInvalidConfidence      = errors.New("confidence must be in [0, 1]")
	ErrDateCountMismatch      = errors.New("path stream length does not match exposure dates")
)
