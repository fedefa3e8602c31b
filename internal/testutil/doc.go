// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the package tests: Must*
// filesystem and environment helpers that fail the test on error, an
// in-memory container engine, and environment set fixtures.
package testutil
