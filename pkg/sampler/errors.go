package sampler

import "errors"

var (
	// ErrNilTarget is returned when no log-target function is supplied.
	ErrNilTarget = errors.New("log target required")

	// ErrInvalidStdDev is returned when the proposal scale is not a positive finite number.
	ErrInvalidStdDev = errors.New("proposal standard deviation must be positive and finite")

	// ErrInvalidSchedule is returned for an empty adaptation schedule or a block shorter than 1.
	ErrInvalidSchedule = errors.New("adaptation schedule must be non-empty with every block >= 1")

	// ErrInvalidSampleCount is returned when sampling is requested for n <= 0 steps.
	ErrInvalidSampleCount = errors.New("sample count must be positive")

	// ErrInvalidTarget is returned when the log target evaluates to NaN or +Inf.
	ErrInvalidTarget = errors.New("log target returned an invalid value")

	// ErrOutOfSupport is returned when the initial state has zero density.
	ErrOutOfSupport = errors.New("initial state is outside the target support")

	// ErrInsufficientSamples is returned when a summary is requested with fewer than 2 samples.
	ErrInsufficientSamples = errors.New("at least 2 samples required for summary")
)
