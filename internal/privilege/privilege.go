// SPDX-License-Identifier: MPL-2.0

// Package privilege decides once per invocation whether ownership changes can be
// made directly or must go through an escalation command, and performs them.
package privilege

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// SuperuserUID is the uid that may change ownership without escalation.
const SuperuserUID = 0

var (
	// ErrPermissionDenied is the sentinel for PermissionDeniedError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoEscalator is wrapped when escalation is required but no escalation command exists.
	ErrNoEscalator = errors.New("escalation command not found")
)

type (
	// Identity is a numeric uid/gid pair.
	Identity struct {
		UID int
		GID int
	}

	// ExecCommandFunc is the function signature for creating exec.Cmd.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// ChownFunc changes the ownership of a single path without following symlinks.
	ChownFunc func(path string, uid, gid int) error

	// PermissionDeniedError reports an ownership change that could not be made.
	PermissionDeniedError struct {
		Path   string
		Output string
		Err    error
	}

	// Context is the resolved privilege state of one invocation.
	Context struct {
		invoking    Identity
		target      Identity
		privileged  bool
		escalator   string
		lookErr     error
		interactive bool

		execCommand ExecCommandFunc
		chown       ChownFunc
		logger      *log.Logger
	}

	// Option configures Resolve.
	Option func(*resolveOptions)

	resolveOptions struct {
		geteuid     func() int
		getegid     func() int
		getenv      func(string) string
		lookPath    func(string) (string, error)
		escalator   string
		interactive func() bool
		execCommand ExecCommandFunc
		chown       ChownFunc
		logger      *log.Logger
	}
)

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("cannot change ownership of %s: %v", e.Path, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// Is matches ErrPermissionDenied.
func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// String formats the identity as chown expects it.
func (i Identity) String() string {
	return strconv.Itoa(i.UID) + ":" + strconv.Itoa(i.GID)
}

// WithIDs overrides the effective uid/gid lookups.
func WithIDs(geteuid, getegid func() int) Option {
	return func(o *resolveOptions) {
		o.geteuid = geteuid
		o.getegid = getegid
	}
}

// WithGetenv overrides the environment lookup used for SUDO_UID/SUDO_GID.
func WithGetenv(getenv func(string) string) Option {
	return func(o *resolveOptions) { o.getenv = getenv }
}

// WithLookPath overrides how the escalation command is located.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(o *resolveOptions) { o.lookPath = lookPath }
}

// WithEscalator changes the escalation command name (default "sudo").
func WithEscalator(name string) Option {
	return func(o *resolveOptions) { o.escalator = name }
}

// WithInteractive overrides the check for a terminal on stdin. Interactive
// invocations let the escalator prompt for a password.
func WithInteractive(fn func() bool) Option {
	return func(o *resolveOptions) { o.interactive = fn }
}

// WithExecCommand overrides command creation for escalated chown.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(o *resolveOptions) { o.execCommand = fn }
}

// WithChown overrides the direct ownership change.
func WithChown(fn ChownFunc) Option {
	return func(o *resolveOptions) { o.chown = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *resolveOptions) { o.logger = logger }
}

// Resolve determines the invoking identity, the identity directories should
// belong to and whether changes need escalation. Under sudo the target is the
// original user from SUDO_UID/SUDO_GID. A missing escalation command is
// recorded and only reported when escalation is attempted.
func Resolve(opts ...Option) (*Context, error) {
	o := resolveOptions{
		geteuid:     os.Geteuid,
		getegid:     os.Getegid,
		getenv:      os.Getenv,
		lookPath:    exec.LookPath,
		escalator:   "sudo",
		interactive: stdinIsTerminal,
		execCommand: exec.CommandContext,
		chown:       os.Lchown,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&o)
	}

	invoking := Identity{UID: o.geteuid(), GID: o.getegid()}
	c := &Context{
		invoking:    invoking,
		target:      invoking,
		privileged:  invoking.UID == SuperuserUID,
		execCommand: o.execCommand,
		chown:       o.chown,
		logger:      o.logger,
	}

	if c.privileged {
		target, ok, err := sudoIdentity(o.getenv)
		if err != nil {
			return nil, err
		}
		if ok {
			c.target = target
		}
		return c, nil
	}

	path, err := o.lookPath(o.escalator)
	if err != nil {
		c.lookErr = fmt.Errorf("%w: %s: %w", ErrNoEscalator, o.escalator, err)
	} else {
		c.escalator = path
		c.interactive = o.interactive()
	}
	return c, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func sudoIdentity(getenv func(string) string) (Identity, bool, error) {
	rawUID, rawGID := getenv("SUDO_UID"), getenv("SUDO_GID")
	if rawUID == "" {
		return Identity{}, false, nil
	}
	uid, err := strconv.Atoi(rawUID)
	if err != nil {
		return Identity{}, false, fmt.Errorf("invalid SUDO_UID %q: %w", rawUID, err)
	}
	gid := uid
	if rawGID != "" {
		if gid, err = strconv.Atoi(rawGID); err != nil {
			return Identity{}, false, fmt.Errorf("invalid SUDO_GID %q: %w", rawGID, err)
		}
	}
	return Identity{UID: uid, GID: gid}, true, nil
}

// Invoking returns the effective identity of this process.
func (c *Context) Invoking() Identity { return c.invoking }

// Target returns the identity provisioned directories should belong to.
func (c *Context) Target() Identity { return c.target }

// Privileged reports whether ownership can be changed without escalation.
func (c *Context) Privileged() bool { return c.privileged }

// RequiresEscalation is the inverse of Privileged.
func (c *Context) RequiresEscalation() bool { return !c.privileged }

// Interactive reports whether escalation may prompt for a password.
func (c *Context) Interactive() bool { return c.interactive }

// Chown gives path (and, when recursive, everything below it) to the target
// identity. Failures are *PermissionDeniedError; nothing is skipped silently.
func (c *Context) Chown(ctx context.Context, path string, recursive bool) error {
	if c.privileged {
		return c.chownDirect(path, recursive)
	}
	return c.chownEscalated(ctx, path, recursive)
}

func (c *Context) chownDirect(path string, recursive bool) error {
	uid, gid := c.target.UID, c.target.GID
	if !recursive {
		if err := c.chown(path, uid, gid); err != nil {
			return &PermissionDeniedError{Path: path, Err: err}
		}
		return nil
	}

	err := filepath.WalkDir(path, func(p string, _ fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		return c.chown(p, uid, gid)
	})
	if err != nil {
		return &PermissionDeniedError{Path: path, Err: err}
	}
	return nil
}

func (c *Context) chownEscalated(ctx context.Context, path string, recursive bool) error {
	if c.escalator == "" {
		err := c.lookErr
		if err == nil {
			err = ErrNoEscalator
		}
		return &PermissionDeniedError{Path: path, Err: err}
	}

	c.logger.Debug("escalating ownership change", "escalator", c.escalator, "path", path, "owner", c.target, "interactive", c.interactive)
	cmd := c.execCommand(ctx, c.escalator, c.escalationArgs(path, recursive)...)
	if c.interactive {
		cmd.Stdin = os.Stdin
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &PermissionDeniedError{Path: path, Output: string(out), Err: err}
	}
	return nil
}

// escalationArgs builds the escalator arguments. Without a terminal -n makes
// the escalator fail instead of waiting for a password nobody can type.
func (c *Context) escalationArgs(path string, recursive bool) []string {
	var args []string
	if !c.interactive {
		args = append(args, "-n")
	}
	args = append(args, "chown")
	if recursive {
		args = append(args, "-R")
	}
	return append(args, c.target.String(), path)
}
