// SPDX-License-Identifier: MPL-2.0

//go:build linux

package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Lock is a held stack lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock at path without blocking. The file is
// world-readable; a lock file created by another user is opened read-only,
// which flock accepts.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	switch {
	case err == nil:
		// umask may have narrowed the mode; other users must still open it.
		if chErr := f.Chmod(0o644); chErr != nil {
			log.Debug("lock file chmod failed", "path", path, "error", chErr)
		}
	case errors.Is(err, fs.ErrPermission):
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and closes the lock file. Subsequent calls are no-ops.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		log.Debug("flock unlock failed", "path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		log.Debug("lock file close failed", "path", l.path, "error", err)
	}
	l.file = nil
}
