// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"stackctl/internal/dag"

	"github.com/charmbracelet/log"
)

var (
	// ErrTargetFailure is the sentinel for TargetFailureError.
	ErrTargetFailure = errors.New("target failed")
	// ErrUnknownTarget is returned for names the graph does not define.
	ErrUnknownTarget = errors.New("unknown target")
)

type (
	// Step is one side-effecting action of a target body.
	Step struct {
		Name string
		Run  func(ctx context.Context) error
	}

	// Target is a named operator action.
	Target struct {
		Name        string
		Description string
		// Prereqs run, in order, before the body.
		Prereqs []string
		Steps   []Step
		// Destructive targets delete persisted state.
		Destructive bool
	}

	// Graph holds targets by name.
	Graph struct {
		targets map[string]*Target
		names   []string
		logger  *log.Logger
	}

	// GraphOption configures a Graph.
	GraphOption func(*Graph)

	// TargetFailureError reports the target and step that failed while
	// running Requested. Nothing after the failing step ran.
	TargetFailureError struct {
		Requested string
		Target    string
		Step      string
		Err       error
	}
)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) GraphOption {
	return func(g *Graph) {
		g.logger = logger
	}
}

// NewGraph returns an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		targets: make(map[string]*Target),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Add registers t. Names must be unique.
func (g *Graph) Add(t Target) error {
	if t.Name == "" {
		return errors.New("target name is required")
	}
	if _, ok := g.targets[t.Name]; ok {
		return fmt.Errorf("duplicate target %q", t.Name)
	}
	g.targets[t.Name] = &t
	g.names = append(g.names, t.Name)
	return nil
}

// Get returns the target called name.
func (g *Graph) Get(name string) (Target, bool) {
	t, ok := g.targets[name]
	if !ok {
		return Target{}, false
	}
	return *t, true
}

// Targets returns every target in registration order.
func (g *Graph) Targets() []Target {
	out := make([]Target, len(g.names))
	for i, n := range g.names {
		out[i] = *g.targets[n]
	}
	return out
}

// Validate rejects prerequisites that name no target and prerequisite cycles.
func (g *Graph) Validate() error {
	d := dag.New()
	for _, name := range g.names {
		d.AddNode(name)
		for _, p := range g.targets[name].Prereqs {
			if _, ok := g.targets[p]; !ok {
				return fmt.Errorf("target %q: %w %q", name, ErrUnknownTarget, p)
			}
			d.AddEdge(p, name)
		}
	}
	if _, err := d.TopologicalSort(); err != nil {
		return fmt.Errorf("invalid target graph: %w", err)
	}
	return nil
}

// Order returns the targets Run(name) executes, in execution order.
func (g *Graph) Order(name string) ([]string, error) {
	if _, ok := g.targets[name]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTarget, name)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var order []string
	visited := make(map[string]bool)
	var visit func(n string)
	visit = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range g.targets[n].Prereqs {
			visit(p)
		}
		order = append(order, n)
	}
	visit(name)
	return order, nil
}

// Run executes name and its prerequisites. Each target runs at most once.
func (g *Graph) Run(ctx context.Context, name string) error {
	order, err := g.Order(name)
	if err != nil {
		return err
	}

	g.logger.Debug("resolved targets", "target", name, "order", strings.Join(order, " -> "))
	for _, n := range order {
		t := g.targets[n]
		g.logger.Info("running target", "target", n)
		for _, step := range t.Steps {
			if err := ctx.Err(); err != nil {
				return &TargetFailureError{Requested: name, Target: n, Step: step.Name, Err: err}
			}
			g.logger.Debug("running step", "target", n, "step", step.Name)
			if err := step.Run(ctx); err != nil {
				return &TargetFailureError{Requested: name, Target: n, Step: step.Name, Err: err}
			}
		}
	}
	return nil
}

func (e *TargetFailureError) Error() string {
	if e.Requested != e.Target {
		return fmt.Sprintf("target %q failed in prerequisite %q at step %q: %v", e.Requested, e.Target, e.Step, e.Err)
	}
	return fmt.Sprintf("target %q failed at step %q: %v", e.Target, e.Step, e.Err)
}

// Unwrap returns the step error.
func (e *TargetFailureError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTargetFailure.
func (e *TargetFailureError) Is(target error) bool { return target == ErrTargetFailure }
