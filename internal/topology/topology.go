// SPDX-License-Identifier: MPL-2.0

package topology

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"stackctl/internal/config"
)

const (
	// Production runs the configured compose files.
	Production Kind = "production"
	// Development runs production plus the overlay files.
	Development Kind = "development"
)

// ErrInvalidTopology is the sentinel for InvalidTopologyError.
var ErrInvalidTopology = errors.New("invalid topology")

type (
	// Kind names a topology.
	Kind string

	// Topology is one compose project: its files in merge order and the
	// environment file compose interpolates from.
	Topology struct {
		Kind       Kind
		Project    string
		Files      []string
		EnvFile    string
		Dir        string
		AppService string
	}

	// Set holds both topologies of a stack.
	Set struct {
		Production  *Topology
		Development *Topology
		// SourceDir is the host source tree the development overlay mounts.
		SourceDir string
	}

	// InvalidTopologyError reports a compose definition that cannot be loaded
	// or whose development overlay is not additive.
	InvalidTopologyError struct {
		Kind   Kind
		Reason string
		Err    error
	}
)

// NewSet resolves both topologies from cfg. envFile is the absolute path of
// the environment set, passed to compose as --env-file.
func NewSet(cfg *config.Config, envFile string) (*Set, error) {
	prod := cfg.ResolveAll(cfg.Topologies.Production.ComposeFiles)
	if len(prod) == 0 {
		return nil, &InvalidTopologyError{Kind: Production, Reason: "no compose files configured"}
	}
	overlay := cfg.ResolveAll(cfg.Topologies.Development.OverlayFiles)

	dir := filepath.Dir(prod[0])
	return &Set{
		Production: &Topology{
			Kind:       Production,
			Project:    cfg.Project,
			Files:      prod,
			EnvFile:    envFile,
			Dir:        dir,
			AppService: cfg.AppService,
		},
		Development: &Topology{
			Kind:       Development,
			Project:    cfg.Project,
			Files:      append(slices.Clone(prod), overlay...),
			EnvFile:    envFile,
			Dir:        dir,
			AppService: cfg.AppService,
		},
		SourceDir: cfg.Resolve(cfg.Topologies.Development.SourceDir),
	}, nil
}

func (e *InvalidTopologyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid %s topology: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s topology: %s: %v", e.Kind, e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InvalidTopologyError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidTopology.
func (e *InvalidTopologyError) Is(target error) bool { return target == ErrInvalidTopology }
