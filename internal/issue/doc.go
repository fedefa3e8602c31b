// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with operator-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and recovery
// suggestions. The Issue catalog maps each failure class (missing configuration,
// permission denied, build failure, ...) to Markdown guidance rendered with glamour.
package issue
