// SPDX-License-Identifier: MPL-2.0

package topology

import (
	"context"
	"io"
	"os"
	"strings"

	"stackctl/internal/container"

	"github.com/charmbracelet/log"
)

type (
	// RunnerOption configures a Runner.
	RunnerOption func(*Runner)

	// Runner issues compose verbs against one topology.
	Runner struct {
		engine container.Engine
		topo   *Topology
		logger *log.Logger
		stdout io.Writer
		stderr io.Writer
	}
)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithOutput sets where compose output goes.
func WithOutput(stdout, stderr io.Writer) RunnerOption {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewRunner creates a runner for topo.
func NewRunner(engine container.Engine, topo *Topology, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: engine,
		topo:   topo,
		logger: log.New(io.Discard),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Topology returns the topology the runner drives.
func (r *Runner) Topology() *Topology { return r.topo }

// Up starts every service detached.
func (r *Runner) Up(ctx context.Context) error {
	return r.compose(ctx, "up", "-d")
}

// Down stops and removes the containers.
func (r *Runner) Down(ctx context.Context) error {
	return r.compose(ctx, "down")
}

// DownVolumes stops and removes the containers and their named volumes.
func (r *Runner) DownVolumes(ctx context.Context) error {
	return r.compose(ctx, "down", "-v")
}

// Recreate force-recreates service without touching its dependencies.
// An empty service recreates the app service.
func (r *Runner) Recreate(ctx context.Context, service string) error {
	if service == "" {
		service = r.topo.AppService
	}
	return r.compose(ctx, "up", "-d", "--no-deps", "--force-recreate", service)
}

func (r *Runner) compose(ctx context.Context, args ...string) error {
	r.logger.Info("compose", "topology", r.topo.Kind, "args", strings.Join(args, " "))
	return r.engine.Compose(ctx, container.ComposeOptions{
		Project: r.topo.Project,
		Files:   r.topo.Files,
		EnvFile: r.topo.EnvFile,
		Dir:     r.topo.Dir,
		Args:    args,
		Stdout:  r.stdout,
		Stderr:  r.stderr,
	})
}
