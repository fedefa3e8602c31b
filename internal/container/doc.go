// SPDX-License-Identifier: MPL-2.0

// Package container provides a unified abstraction layer for container engines (Docker/Podman).
//
// The Engine interface covers what the stack needs from a container runtime: building
// images, reading their labels for cache-state decisions, removing them, and driving
// compose projects. DockerEngine and PodmanEngine both embed BaseCLIEngine for shared
// CLI argument construction and command execution.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback if the preferred
// engine is unavailable. When Docker is in use, label inspection can go through the
// Docker API (APIInspector) instead of a CLI round trip.
package container
