// SPDX-License-Identifier: MPL-2.0

package envset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingConfig is the sentinel for MissingConfigError.
	ErrMissingConfig = errors.New("missing configuration")
	// ErrInvalidEnvironment is the sentinel for InvalidEnvironmentError.
	ErrInvalidEnvironment = errors.New("invalid environment")
)

type (
	// MissingConfigError reports required keys that are absent or blank, or an
	// environment file that could not be read at all.
	MissingConfigError struct {
		Path string
		Keys []string
		Err  error
	}

	// InvalidEnvironmentError reports values that are present but malformed.
	InvalidEnvironmentError struct {
		Path string
		Err  error
	}
)

func (e *MissingConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("environment file %s unreadable: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("environment file %s is missing required keys: %s", e.Path, strings.Join(e.Keys, ", "))
}

// Unwrap returns the read error, if any.
func (e *MissingConfigError) Unwrap() error { return e.Err }

// Is matches ErrMissingConfig.
func (e *MissingConfigError) Is(target error) bool { return target == ErrMissingConfig }

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("environment file %s has invalid values: %v", e.Path, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *InvalidEnvironmentError) Unwrap() error { return e.Err }

// Is matches ErrInvalidEnvironment.
func (e *InvalidEnvironmentError) Is(target error) bool { return target == ErrInvalidEnvironment }
