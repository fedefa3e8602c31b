// SPDX-License-Identifier: MPL-2.0

// Package lifecycle composes the operator commands of a stack as a target
// graph. A target names its prerequisites and a body of steps; running a
// target runs its prerequisites depth-first and left to right, each at most
// once per invocation, then its own body. The first failing step aborts the
// whole chain.
package lifecycle
