// SPDX-License-Identifier: MPL-2.0

// Package lock serializes invocations that touch the same host state (the
// volume directories and the image build cache) with an advisory file lock.
//
// On Linux the lock is an exclusive, non-blocking flock on a dot file next to
// the volume root, so every invocation against the same root, with or without
// sudo, contends for the same file. A second invocation fails fast with
// ErrLocked instead of waiting. The kernel drops the flock when the descriptor
// closes, so a crashed process never leaves the stack locked. Elsewhere
// Acquire is a no-op and a single operator per stack is assumed.
package lock

import (
	"errors"
	"path/filepath"
)

// ErrLocked is returned when another invocation holds the lock.
var ErrLocked = errors.New("stack is locked by another invocation")

// PathFor returns the lock file path for the stack rooted at volumeRoot:
// ".<base>.stackctl.lock" in the root's parent directory. The path depends on
// nothing but the root, so the environment sudo resets cannot move it.
func PathFor(volumeRoot string) string {
	if abs, err := filepath.Abs(volumeRoot); err == nil {
		volumeRoot = abs
	}
	volumeRoot = filepath.Clean(volumeRoot)
	return filepath.Join(filepath.Dir(volumeRoot), "."+filepath.Base(volumeRoot)+".stackctl.lock")
}
