package benchmark

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a run is requested while another is in progress.
	ErrBusy = errors.New("benchmark already in progress")
	// ErrNotInitialized is returned when a workload that needs initialization has
	// not been initialized.
	ErrNotInitialized = errors.New("workload not initialized")
)

// ConfigurationError reports a run that was rejected before any iteration executed.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Phase identifies where a workload failed.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhasePrepare    Phase = "prepare"
	PhaseWarmup     Phase = "warmup"
	PhaseMeasure    Phase = "measure"
)

// WorkloadInvocationError wraps a failure raised by the workload itself. Completed
// counts the measured iterations that finished before the failure; their durations
// are discarded.
type WorkloadInvocationError struct {
	Phase     Phase
	Iteration int
	Completed int
	Err       error
}

func (e *WorkloadInvocationError) Error() string {
	if e.Iteration == 0 {
		return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s iteration %d failed (%d completed): %v", e.Phase, e.Iteration, e.Completed, e.Err)
}

func (e *WorkloadInvocationError) Unwrap() error { return e.Err }

func panicError(rec any) error {
	return fmt.Errorf("panic: %v", rec)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsInvocationError reports whether err is or wraps a WorkloadInvocationError.
func IsInvocationError(err error) bool {
	var invErr *WorkloadInvocationError
	return errors.As(err, &invErr)
}
