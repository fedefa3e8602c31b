// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/envset"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/name"
)

const (
	// ActionReuse keeps the existing stage image; the engine is not invoked.
	ActionReuse Action = "reuse"
	// ActionBuild builds the stage with the engine's layer cache.
	ActionBuild Action = "build"
	// ActionRebuild builds the stage without the layer cache.
	ActionRebuild Action = "rebuild"
)

type (
	// Action is what Build does with a stage.
	Action string

	// StagePlan is the resolved build of one stage.
	StagePlan struct {
		Name       string
		From       string
		Tag        string
		CacheKey   string
		Dockerfile string
		Action     Action
		// Pull refreshes the base image; only the first stage of a rebuild pulls.
		Pull bool
	}

	// Artifact is the result of a successful build.
	Artifact struct {
		// Tag is the output image reference.
		Tag    string
		Stages []StagePlan
	}

	// Option configures a Builder.
	Option func(*Builder)

	// Builder builds the layered image of a stack.
	Builder struct {
		engine    container.Engine
		inspector container.ImageInspector
		cfg       *config.Config
		logger    *log.Logger
		stdout    io.Writer
		stderr    io.Writer
		workDir   string
	}
)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithInspector overrides how stage cache keys are read back. It defaults to
// the engine itself.
func WithInspector(inspector container.ImageInspector) Option {
	return func(b *Builder) {
		b.inspector = inspector
	}
}

// WithOutput sets where engine build output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Builder) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithWorkDir sets the parent directory of generated Dockerfiles.
func WithWorkDir(dir string) Option {
	return func(b *Builder) {
		b.workDir = dir
	}
}

// NewBuilder creates a builder for cfg's image. A nil cfg uses the default stack.
func NewBuilder(engine container.Engine, cfg *config.Config, opts ...Option) *Builder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	b := &Builder{
		engine:    engine,
		inspector: engine,
		cfg:       cfg,
		logger:    log.New(io.Discard),
		stdout:    os.Stderr,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OutputTag returns the image reference the last stage is tagged with.
func (b *Builder) OutputTag(env *envset.Environment) (string, error) {
	return validTag(b.cfg.Image.Repository + ":" + env.Version())
}

// validTag checks ref parses as an image tag and returns it unchanged.
func validTag(ref string) (string, error) {
	if _, err := name.NewTag(ref); err != nil {
		return "", fmt.Errorf("invalid image tag %q: %w", ref, err)
	}
	return ref, nil
}

// Plan resolves what Build would do for each stage without building.
func (b *Builder) Plan(ctx context.Context, scope Scope, env *envset.Environment) ([]StagePlan, error) {
	stages, err := StagesFromConfig(b.cfg.Image)
	if err != nil {
		return nil, &BuildFailureError{Err: err}
	}

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	invalid, err := scope.Expand(names)
	if err != nil {
		return nil, &BuildFailureError{Err: err}
	}

	output, err := b.OutputTag(env)
	if err != nil {
		return nil, &BuildFailureError{Err: err}
	}

	args := env.BuildArgs()
	argKeys := slices.Sorted(maps.Keys(args))

	plans := make([]StagePlan, 0, len(stages))
	from, parentKey := b.cfg.Image.BaseImage, ""
	for i, stage := range stages {
		tag := output
		if i < len(stages)-1 {
			tag, err = validTag(b.cfg.Image.Repository + ":" + env.Version() + "-" + stage.Name)
			if err != nil {
				return nil, &BuildFailureError{Stage: stage.Name, Err: err}
			}
		}

		body := dockerfileBody(from, stage, argKeys)
		key := cacheKey(parentKey, body, args)
		plan := StagePlan{
			Name:       stage.Name,
			From:       from,
			Tag:        tag,
			CacheKey:   key,
			Dockerfile: withCacheKey(body, key),
			Action:     ActionBuild,
		}

		if invalid[i] {
			plan.Action = ActionRebuild
			plan.Pull = i == 0
		} else {
			labels, exists, err := b.inspector.ImageLabels(ctx, tag)
			if err != nil {
				return nil, &BuildFailureError{Stage: stage.Name, Tag: tag, Err: err}
			}
			if exists && labels[CacheKeyLabel] == key {
				plan.Action = ActionReuse
			}
		}

		plans = append(plans, plan)
		from, parentKey = tag, key
	}
	return plans, nil
}

// Build runs the stages in order. The first failing stage aborts the build;
// later stages do not start and the output tag is left untouched.
func (b *Builder) Build(ctx context.Context, scope Scope, env *envset.Environment) (*Artifact, error) {
	plans, err := b.Plan(ctx, scope, env)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(b.workDir, "stackctl-build-*")
	if err != nil {
		return nil, &BuildFailureError{Err: fmt.Errorf("failed to create build directory: %w", err)}
	}
	defer func() { _ = os.RemoveAll(dir) }() // Generated Dockerfiles only; removal error non-critical

	contextDir := b.cfg.Resolve(b.cfg.Image.Context)
	args := env.BuildArgs()

	b.logger.Info("building image", "tag", plans[len(plans)-1].Tag, "scope", scope.String())
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, &BuildFailureError{Stage: plan.Name, Tag: plan.Tag, Err: err}
		}

		if plan.Action == ActionReuse {
			b.logger.Info("reusing stage", "stage", plan.Name, "tag", plan.Tag)
			continue
		}

		dockerfile := filepath.Join(dir, "Dockerfile."+plan.Name)
		if err := os.WriteFile(dockerfile, []byte(plan.Dockerfile), 0o644); err != nil {
			return nil, &BuildFailureError{Stage: plan.Name, Tag: plan.Tag, Err: fmt.Errorf("failed to write Dockerfile: %w", err)}
		}

		b.logger.Info("building stage", "stage", plan.Name, "tag", plan.Tag, "action", plan.Action)
		b.logger.Debug("stage cache key", "stage", plan.Name, "key", plan.CacheKey)
		err := b.engine.Build(ctx, container.BuildOptions{
			ContextDir: contextDir,
			Dockerfile: dockerfile,
			Tag:        plan.Tag,
			BuildArgs:  args,
			NoCache:    plan.Action == ActionRebuild,
			Pull:       plan.Pull,
			Stdout:     b.stdout,
			Stderr:     b.stderr,
		})
		if err != nil {
			return nil, &BuildFailureError{Stage: plan.Name, Tag: plan.Tag, Err: err}
		}
	}

	return &Artifact{Tag: plans[len(plans)-1].Tag, Stages: plans}, nil
}

// Built returns the names of the stages the engine built.
func (a *Artifact) Built() []string {
	var out []string
	for _, s := range a.Stages {
		if s.Action != ActionReuse {
			out = append(out, s.Name)
		}
	}
	return out
}
