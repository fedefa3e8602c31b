// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/dag"
	"stackctl/internal/entry"
	"stackctl/internal/envset"
	"stackctl/internal/imagebuild"
	"stackctl/internal/issue"
	"stackctl/internal/lifecycle"
	"stackctl/internal/lock"
	"stackctl/internal/privilege"
	"stackctl/internal/topology"
)

// classifyError maps a failure to its issue catalog entry. The most specific
// cause wins: a target that failed because of a missing key is a missing key.
func classifyError(err error) issue.Id {
	var cycle *dag.CycleError
	var ae *issue.ActionableError

	switch {
	case errors.Is(err, envset.ErrMissingConfig):
		return issue.MissingConfigId
	case errors.Is(err, envset.ErrInvalidEnvironment):
		return issue.InvalidEnvironmentId
	case errors.Is(err, lock.ErrLocked):
		return issue.StackLockedId
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.ContainerEngineNotFoundId
	case errors.Is(err, privilege.ErrPermissionDenied):
		return issue.PermissionDeniedId
	case errors.Is(err, topology.ErrInvalidTopology):
		return issue.TopologyInvalidId
	case errors.Is(err, imagebuild.ErrBuildFailure):
		return issue.BuildFailureId
	case errors.Is(err, entry.ErrStartupFailure):
		return issue.StartupFailureId
	case errors.As(err, &cycle):
		return issue.DependencyCycleId
	case errors.Is(err, lifecycle.ErrUnknownTarget):
		return issue.UnknownTargetId
	case errors.Is(err, lifecycle.ErrTargetFailure):
		return issue.TargetFailureId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.As(err, &ae) && ae.Operation == "load configuration":
		return issue.ConfigLoadFailedId
	}
	return 0
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their own format, which shows the full chain in verbose mode.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderFailure writes the catalog help for err followed by the error itself.
func renderFailure(w io.Writer, err error, verbose bool) {
	if id := classifyError(err); id != 0 {
		if catalogEntry := issue.Get(id); catalogEntry != nil {
			if rendered, renderErr := catalogEntry.Render("dark"); renderErr == nil {
				fmt.Fprint(w, rendered)
			}
		}
	}
	fmt.Fprintf(w, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
}

// fail renders err and wraps it for a non-zero exit.
func (a *App) fail(err error, verbose bool) error {
	renderFailure(a.stderr, err, verbose)
	return &ExitError{Code: 1, Err: err}
}
