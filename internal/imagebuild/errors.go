// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"errors"
	"fmt"
)

// ErrBuildFailure is the sentinel for BuildFailureError.
var ErrBuildFailure = errors.New("image build failed")

// BuildFailureError reports the stage whose build failed. No later stage ran
// and the output tag was not applied.
type BuildFailureError struct {
	Stage string
	Tag   string
	Err   error
}

func (e *BuildFailureError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("image build failed: %v", e.Err)
	}
	return fmt.Sprintf("image build failed at stage %q (%s): %v", e.Stage, e.Tag, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BuildFailureError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBuildFailure.
func (e *BuildFailureError) Is(target error) bool { return target == ErrBuildFailure }
