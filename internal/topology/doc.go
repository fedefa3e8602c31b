// SPDX-License-Identifier: MPL-2.0

// Package topology describes the two container topologies of a stack and
// drives their compose verbs.
//
// Production is the configured compose files. Development is the same files
// followed by an overlay that may only add to production (typically a bind
// mount of the source tree); it is never a separate definition. Validate loads
// both with compose-go, interpolating from the environment set, and rejects
// overlays that remove or replace production services.
package topology
