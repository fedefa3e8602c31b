// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman selects the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the docker CLI.
	EngineTypeDocker EngineType = "docker"
)

// ErrEngineNotAvailable is the sentinel for EngineNotAvailableError.
var ErrEngineNotAvailable = errors.New("container engine not available")

type (
	// ImageInspector reads image metadata. Engines implement it through their
	// CLI; APIInspector implements it through the Docker API.
	ImageInspector interface {
		// ImageLabels returns the labels of image and whether the image exists.
		// A missing image is not an error.
		ImageLabels(ctx context.Context, image string) (map[string]string, bool, error)
	}

	// Engine defines the interface for container operations.
	Engine interface {
		ImageInspector

		// Name returns the engine name (docker or podman)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile. The tag is only applied
		// when the build succeeds.
		Build(ctx context.Context, opts BuildOptions) error
		// Compose runs a compose subcommand against a project.
		Compose(ctx context.Context, opts ComposeOptions) error
	}

	// BuildOptions contains options for building an image
	BuildOptions struct {
		// ContextDir is the build context directory
		ContextDir string
		// Dockerfile is the path to the Dockerfile (relative to ContextDir)
		Dockerfile string
		// Tag is the image tag
		Tag string
		// BuildArgs are build-time variables
		BuildArgs map[string]string
		// NoCache disables the build cache
		NoCache bool
		// Pull always fetches the base image, refreshing layers cached from it
		Pull bool
		// Stdout is where to write build output
		Stdout io.Writer
		// Stderr is where to write build errors
		Stderr io.Writer
	}

	// ComposeOptions contains options for a compose invocation.
	ComposeOptions struct {
		// Project is the compose project name (-p)
		Project string
		// Files are the compose files, applied in order (-f)
		Files []string
		// EnvFile is passed as --env-file so compose interpolates from the same set
		EnvFile string
		// Dir is the working directory of the compose process
		Dir string
		// Args is the subcommand and its arguments (e.g. "up", "-d")
		Args []string
		// Stdout is where to write compose output
		Stdout io.Writer
		// Stderr is where to write compose errors
		Stderr io.Writer
	}

	// EngineType identifies the container engine type
	EngineType string

	// EngineNotAvailableError is returned when a container engine is not available
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// NewEngine creates a new container engine based on preference, falling back
// to the other engine when the preferred one is unavailable.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		engine := NewPodmanEngine(opts...)
		if engine.Available() {
			return engine, nil
		}
		dockerEngine := NewDockerEngine(opts...)
		if dockerEngine.Available() {
			return dockerEngine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		engine := NewDockerEngine(opts...)
		if engine.Available() {
			return engine, nil
		}
		podmanEngine := NewPodmanEngine(opts...)
		if podmanEngine.Available() {
			return podmanEngine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}
