// SPDX-License-Identifier: MPL-2.0

package entry

import (
	"errors"
	"fmt"
)

const (
	// PhaseBackground is starting the background process.
	PhaseBackground Phase = "background"
	// PhaseReadiness is waiting for the background process to become ready.
	PhaseReadiness Phase = "readiness"
	// PhaseForeground is running the foreground process.
	PhaseForeground Phase = "foreground"
)

// ErrStartupFailure is the sentinel for StartupFailureError.
var ErrStartupFailure = errors.New("container startup failed")

type (
	// Phase names a step of the startup sequence.
	Phase string

	// StartupFailureError reports the phase that ended the sequence.
	StartupFailureError struct {
		Phase   Phase
		Command string
		Err     error
	}
)

func (e *StartupFailureError) Error() string {
	return fmt.Sprintf("startup failed in %s phase (%s): %v", e.Phase, e.Command, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StartupFailureError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStartupFailure.
func (e *StartupFailureError) Is(target error) bool { return target == ErrStartupFailure }
