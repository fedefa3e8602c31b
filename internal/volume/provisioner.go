// SPDX-License-Identifier: MPL-2.0

// Package volume provisions the persistent directory set of the stack: it
// creates the directories, corrects their ownership and removes them on reset.
package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"stackctl/internal/privilege"

	"github.com/charmbracelet/log"
)

// DirPerm is the mode of newly created volume directories.
const DirPerm = 0o755

type (
	// Chowner changes ownership on behalf of the provisioner. *privilege.Context
	// implements it.
	Chowner interface {
		Target() privilege.Identity
		Chown(ctx context.Context, path string, recursive bool) error
	}

	// OwnerFunc reports the owner of a path without following symlinks.
	OwnerFunc func(path string) (privilege.Identity, error)

	// Scope selects which directories an ownership fix covers.
	Scope struct {
		all  bool
		name string
		path string
	}

	// Provisioner creates, repairs and removes the volume directory set.
	Provisioner struct {
		set    *Set
		chown  Chowner
		owner  OwnerFunc
		logger *log.Logger
	}

	// Option configures a Provisioner.
	Option func(*Provisioner)

	// EnsureReport lists which directories were created and which already existed.
	EnsureReport struct {
		Created  []string
		Existing []string
	}

	// OwnershipReport describes one ownership pass.
	OwnershipReport struct {
		// Checked counts the entries inspected.
		Checked int
		// Mismatched lists entries not owned by the target identity.
		Mismatched []string
		// Changed lists the scope roots handed to Chown.
		Changed []string
		// Absent lists scope roots that do not exist and were skipped.
		Absent []string
	}

	// RemoveReport lists which directories were deleted and which were already gone.
	RemoveReport struct {
		Removed []string
		Absent  []string
	}
)

// ScopeAll covers every volume directory.
func ScopeAll() Scope { return Scope{all: true} }

// ScopeNamed covers a single named directory outside (or inside) the volume set,
// such as the development source tree.
func ScopeNamed(name, path string) Scope { return Scope{name: name, path: path} }

// String names the scope for logs.
func (s Scope) String() string {
	if s.all {
		return "all volumes"
	}
	return s.name
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Provisioner) { p.logger = logger }
}

// WithOwnerFunc overrides how ownership is read.
func WithOwnerFunc(fn OwnerFunc) Option {
	return func(p *Provisioner) { p.owner = fn }
}

// NewProvisioner returns a provisioner for set that changes ownership through chown.
func NewProvisioner(set *Set, chown Chowner, opts ...Option) *Provisioner {
	p := &Provisioner{
		set:    set,
		chown:  chown,
		owner:  lstatOwner,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Set returns the directory set.
func (p *Provisioner) Set() *Set { return p.set }

// Ensure creates every missing directory. Present directories are left alone,
// so repeated calls converge on the same state.
func (p *Provisioner) Ensure(ctx context.Context) (*EnsureReport, error) {
	report := &EnsureReport{}
	for _, path := range p.set.Paths() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			report.Existing = append(report.Existing, path)
			continue
		case err == nil:
			return report, fmt.Errorf("volume path %s exists and is not a directory", path)
		case !errors.Is(err, fs.ErrNotExist):
			return report, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if err := os.MkdirAll(path, DirPerm); err != nil {
			return report, fmt.Errorf("failed to create %s: %w", path, err)
		}
		p.logger.Info("created volume directory", "path", path)
		report.Created = append(report.Created, path)
	}
	return report, nil
}

// FixOwnership gives every entry in scope to the target identity. When all
// entries already match, it returns without escalating.
func (p *Provisioner) FixOwnership(ctx context.Context, scope Scope) (*OwnershipReport, error) {
	target := p.chown.Target()
	report := &OwnershipReport{}

	var roots []string
	for _, root := range p.scopeRoots(scope) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := os.Lstat(root); errors.Is(err, fs.ErrNotExist) {
			p.logger.Debug("skipping absent directory", "path", root)
			report.Absent = append(report.Absent, root)
			continue
		}

		mismatched, checked, err := p.mismatches(root, target)
		report.Checked += checked
		if err != nil {
			return report, err
		}
		if len(mismatched) > 0 {
			report.Mismatched = append(report.Mismatched, mismatched...)
			roots = append(roots, root)
		}
	}

	if len(roots) == 0 {
		p.logger.Debug("ownership already correct", "scope", scope, "owner", target, "checked", report.Checked)
		return report, nil
	}

	for _, root := range roots {
		p.logger.Info("fixing ownership", "path", root, "owner", target)
		if err := p.chown.Chown(ctx, root, true); err != nil {
			return report, err
		}
		report.Changed = append(report.Changed, root)
	}
	return report, nil
}

func (p *Provisioner) scopeRoots(scope Scope) []string {
	if scope.all {
		return p.set.Paths()
	}
	if scope.path == "" {
		return nil
	}
	return []string{scope.path}
}

func (p *Provisioner) mismatches(root string, target privilege.Identity) ([]string, int, error) {
	var (
		mismatched []string
		checked    int
	)
	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are what the chown is for.
			if errors.Is(walkErr, fs.ErrPermission) {
				mismatched = append(mismatched, path)
				return fs.SkipDir
			}
			return walkErr
		}
		owner, err := p.owner(path)
		if err != nil {
			return fmt.Errorf("failed to read owner of %s: %w", path, err)
		}
		checked++
		if owner != target {
			mismatched = append(mismatched, path)
		}
		return nil
	})
	return mismatched, checked, err
}

// Remove deletes every volume directory. Already absent directories count
// as removed, so the result is the empty state however often it runs.
func (p *Provisioner) Remove(ctx context.Context) (*RemoveReport, error) {
	report := &RemoveReport{}
	for _, path := range p.set.Paths() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			report.Absent = append(report.Absent, path)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		p.logger.Info("removed volume directory", "path", path)
		report.Removed = append(report.Removed, path)
	}
	return report, nil
}
