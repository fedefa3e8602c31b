// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package lock

// Lock is the non-Linux stub.
type Lock struct {
	path string
}

// Acquire never blocks or fails outside Linux.
func Acquire(path string) (*Lock, error) {
	return &Lock{path: path}, nil
}

// Path returns the lock file path that would be used on Linux.
func (l *Lock) Path() string { return l.path }

// Release is a no-op outside Linux.
func (l *Lock) Release() {}
