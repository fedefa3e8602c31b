// SPDX-License-Identifier: MPL-2.0

// Package entry is the in-container startup sequence: start a long-running
// background process, wait until it is ready, run the foreground process, then
// keep the container alive until it is told to stop.
//
// Readiness is an explicit Probe polled with bounded exponential backoff.
// DelayProbe keeps the plain fixed wait for services that expose nothing to
// probe. A failing foreground process is reported, never relaunched.
package entry
