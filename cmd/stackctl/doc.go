// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for stackctl.
//
// Every lifecycle target of the stack is a top-level command. The build,
// entrypoint, targets, config and env commands expose the image builder,
// the container entry sequencer and read-only views of the configuration.
package cmd
