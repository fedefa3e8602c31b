// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"stackctl/internal/issue"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides common implementation for CLI-based container engines.
	// Docker and Podman engines embed this struct. Methods that are identical across
	// CLI engines (Build, Compose, ImageLabels) are
	// implemented here; Available and Version remain on the concrete types.
	BaseCLIEngine struct {
		name        string // Engine name for error messages (e.g., "docker", "podman")
		binaryPath  string
		execCommand ExecCommandFunc
		// pullFlag is how the engine spells "always pull the base image".
		pullFlag string
	}
)

// --- Options ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets the function used to create commands.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the binary located with exec.LookPath.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// withPullFlag sets the engine-specific spelling of the pull flag.
func withPullFlag(flag string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.pullFlag = flag
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
		pullFlag:    "--pull",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Accessor Methods ---

// Name returns the engine name used in error messages.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a container build command.
// Build args are emitted in key order so identical inputs give identical command lines.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		// Relative Dockerfile paths are resolved against the context directory.
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	if opts.Pull {
		args = append(args, e.pullFlag)
	}

	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, opts.BuildArgs[k]))
	}

	args = append(args, opts.ContextDir)

	return args
}

// ComposeArgs constructs arguments for a compose invocation.
//
// Generated command: <binary> compose [-p project] [-f file]... [--env-file f] <args...>
func (e *BaseCLIEngine) ComposeArgs(opts ComposeOptions) []string {
	args := []string{"compose"}

	if opts.Project != "" {
		args = append(args, "-p", opts.Project)
	}

	for _, f := range opts.Files {
		args = append(args, "-f", f)
	}

	if opts.EnvFile != "" {
		args = append(args, "--env-file", opts.EnvFile)
	}

	return append(args, opts.Args...)
}

// --- Command Execution ---

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("command %s %v failed: %w: %s", e.binaryPath, args, err, msg)
		}
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}

	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the given arguments.
// This is useful when the caller needs to customize stdin/stdout/stderr.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// Build builds an image from a Dockerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	args := e.BuildArgs(opts)

	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}

	return nil
}

// Compose runs a compose subcommand.
func (e *BaseCLIEngine) Compose(ctx context.Context, opts ComposeOptions) error {
	args := e.ComposeArgs(opts)

	cmd := e.CreateCommand(ctx, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return composeError(e.name, opts, err)
	}

	return nil
}

// ImageLabels returns the labels of image. A failed inspect is treated as a
// missing image.
func (e *BaseCLIEngine) ImageLabels(ctx context.Context, image string) (map[string]string, bool, error) {
	out, err := e.RunCommandWithOutput(ctx, "image", "inspect", "--format", "{{json .Config.Labels}}", image)
	if err != nil {
		return nil, false, nil
	}
	labels, err := parseLabels(out)
	if err != nil {
		return nil, true, fmt.Errorf("failed to parse labels of %s: %w", image, err)
	}
	return labels, true, nil
}

// parseLabels decodes the JSON label map printed by image inspect. Images
// without labels print "null".
func parseLabels(out string) (map[string]string, error) {
	out = strings.TrimSpace(out)
	labels := map[string]string{}
	if out == "" || out == "null" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(out), &labels); err != nil {
		return nil, err
	}
	if labels == nil {
		labels = map[string]string{}
	}
	return labels, nil
}

// --- Actionable Error Helpers ---

// buildContainerError creates an actionable error for container build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image")

	switch {
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	case opts.Dockerfile != "":
		ctx.WithResource(opts.Dockerfile)
	}

	ctx.WithSuggestion("Check the generated Dockerfile and the failing step in the build output")
	ctx.WithSuggestion("Verify the build context path exists and is accessible")
	ctx.WithSuggestion("Ensure base images are available (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see full build output")

	return ctx.Wrap(cause).BuildError()
}

// composeError creates an actionable error for compose failures.
func composeError(engine string, opts ComposeOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run " + engine + " compose " + strings.Join(opts.Args, " "))

	if len(opts.Files) > 0 {
		ctx.WithResource(strings.Join(opts.Files, ", "))
	}

	ctx.WithSuggestion("Validate the compose files (try: " + engine + " compose config)")
	ctx.WithSuggestion("Check that the environment file defines every interpolated variable")
	ctx.WithSuggestion("Inspect service logs (try: " + engine + " compose logs)")

	return ctx.Wrap(cause).BuildError()
}
