// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"

	"stackctl/internal/envset"
	"stackctl/internal/imagebuild"
	"stackctl/internal/topology"
	"stackctl/internal/volume"

	"github.com/charmbracelet/log"
)

// DevPrefix prefixes the development family of targets.
const DevPrefix = "dev-"

type (
	// Volumes is the directory provisioner as the stack uses it.
	Volumes interface {
		Ensure(ctx context.Context) (*volume.EnsureReport, error)
		FixOwnership(ctx context.Context, scope volume.Scope) (*volume.OwnershipReport, error)
		Remove(ctx context.Context) (*volume.RemoveReport, error)
	}

	// ImageBuilder builds the layered image.
	ImageBuilder interface {
		Build(ctx context.Context, scope imagebuild.Scope, env *envset.Environment) (*imagebuild.Artifact, error)
	}

	// Composer issues compose verbs against one topology.
	Composer interface {
		Up(ctx context.Context) error
		Down(ctx context.Context) error
		DownVolumes(ctx context.Context) error
		Recreate(ctx context.Context, service string) error
	}

	// Deps are the collaborators the stack targets drive.
	Deps struct {
		Volumes Volumes
		Builder ImageBuilder
		Env     *envset.Environment
		// Stages are the image stage names in build order.
		Stages []string
		// Production and Development drive the two topologies.
		Production  Composer
		Development Composer
		// SourceDir is the host source tree mounted by the development overlay.
		SourceDir string
		Logger    *log.Logger
	}
)

// NewStack builds the target graph of both topologies from one definition.
// The development family mirrors production under DevPrefix and adds the
// reset targets.
func NewStack(deps Deps) (*Graph, error) {
	if deps.Volumes == nil || deps.Builder == nil || deps.Env == nil || deps.Production == nil || deps.Development == nil {
		return nil, errors.New("lifecycle: incomplete dependencies")
	}

	var opts []GraphOption
	if deps.Logger != nil {
		opts = append(opts, WithLogger(deps.Logger))
	}
	g := NewGraph(opts...)

	for _, t := range stackTargets(deps) {
		if err := g.Add(t); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Catalog lists the stack targets for an image with the given stages without
// binding them to collaborators. The steps are named but must not be run.
func Catalog(stages []string) []Target {
	return stackTargets(Deps{Stages: stages})
}

func stackTargets(deps Deps) []Target {
	targets := append(family(deps, topology.Production, "", deps.Production), family(deps, topology.Development, DevPrefix, deps.Development)...)
	return append(targets, devResets(deps)...)
}

// family returns the targets shared by both topologies, named with prefix.
func family(deps Deps, kind topology.Kind, prefix string, c Composer) []Target {
	k := string(kind)
	return []Target{
		{
			Name:        prefix + "init",
			Description: "Create the volume directories (" + k + ")",
			Steps:       []Step{ensureStep(deps)},
		},
		{
			Name:        prefix + "chown-volumes",
			Description: "Give every volume directory back to the invoking user (" + k + ")",
			Steps:       []Step{chownStep(deps, volume.ScopeAll())},
		},
		{
			Name:        prefix + "chown-volume-src",
			Description: "Give the source tree back to the invoking user (" + k + ")",
			Steps:       []Step{chownStep(deps, volume.ScopeNamed("src", deps.SourceDir))},
		},
		{
			Name:        prefix + "up",
			Description: "Start every container detached (" + k + ")",
			Prereqs:     []string{prefix + "init"},
			Steps:       []Step{upStep(c)},
		},
		{
			Name:        prefix + "down",
			Description: "Stop and remove the containers (" + k + ")",
			Steps:       []Step{{Name: "compose down", Run: func(ctx context.Context) error { return c.Down(ctx) }}},
		},
		{
			Name:        prefix + "down-v",
			Description: "Stop and remove the containers and their volumes (" + k + ")",
			Steps:       []Step{{Name: "compose down -v", Run: func(ctx context.Context) error { return c.DownVolumes(ctx) }}},
			Destructive: true,
		},
		{
			Name:        prefix + "rebuild",
			Description: "Rebuild the final image layer and recreate the app container (" + k + ")",
			Steps:       []Step{buildStep(deps, imagebuild.FinalLayerOnly(deps.Stages)), recreateStep(c)},
		},
		{
			Name:        prefix + "rebuild-all",
			Description: "Rebuild every image layer and recreate the app container (" + k + ")",
			Steps:       []Step{buildStep(deps, imagebuild.AllLayers(deps.Stages)), recreateStep(c)},
		},
	}
}

// devResets returns the development-only reset targets.
func devResets(deps Deps) []Target {
	return []Target{
		{
			Name:        DevPrefix + "clean",
			Description: "Stop the development stack and delete the volume directories",
			Prereqs:     []string{DevPrefix + "chown-volumes", DevPrefix + "down-v"},
			Steps:       []Step{removeStep(deps)},
			Destructive: true,
		},
		{
			Name:        DevPrefix + "rebuild-clean",
			Description: "Reset, rebuild the final image layer and start the development stack",
			Prereqs:     []string{DevPrefix + "clean", DevPrefix + "init"},
			Steps:       []Step{buildStep(deps, imagebuild.FinalLayerOnly(deps.Stages)), upStep(deps.Development)},
			Destructive: true,
		},
		{
			Name:        DevPrefix + "full-rebuild",
			Description: "Reset, rebuild every image layer and start the development stack",
			Prereqs:     []string{DevPrefix + "clean", DevPrefix + "init"},
			Steps:       []Step{buildStep(deps, imagebuild.AllLayers(deps.Stages)), upStep(deps.Development)},
			Destructive: true,
		},
	}
}

func ensureStep(deps Deps) Step {
	return Step{Name: "ensure directories", Run: func(ctx context.Context) error {
		_, err := deps.Volumes.Ensure(ctx)
		return err
	}}
}

func chownStep(deps Deps, scope volume.Scope) Step {
	return Step{Name: "fix ownership of " + scope.String(), Run: func(ctx context.Context) error {
		_, err := deps.Volumes.FixOwnership(ctx, scope)
		return err
	}}
}

func removeStep(deps Deps) Step {
	return Step{Name: "remove directories", Run: func(ctx context.Context) error {
		_, err := deps.Volumes.Remove(ctx)
		return err
	}}
}

func buildStep(deps Deps, scope imagebuild.Scope) Step {
	return Step{Name: "build image (invalidate " + scope.String() + ")", Run: func(ctx context.Context) error {
		_, err := deps.Builder.Build(ctx, scope, deps.Env)
		return err
	}}
}

func upStep(c Composer) Step {
	return Step{Name: "compose up -d", Run: func(ctx context.Context) error { return c.Up(ctx) }}
}

func recreateStep(c Composer) Step {
	return Step{Name: "force-recreate app service", Run: func(ctx context.Context) error {
		return c.Recreate(ctx, "")
	}}
}
