// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/name"
)

const (
	// ContainerEngineDocker uses the docker CLI (and its API for image inspection).
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses the podman CLI.
	ContainerEnginePodman ContainerEngine = "podman"
)

// ErrInvalidConfig is returned (wrapped) when a decoded configuration violates a
// constraint the CUE schema cannot express.
var ErrInvalidConfig = errors.New("invalid stack configuration")

type (
	// ContainerEngine names the container CLI driving builds and compose.
	ContainerEngine string

	// Config is the stack layout: where volumes live, how the image is layered
	// and which compose files make up each topology.
	Config struct {
		Project         string           `json:"project" mapstructure:"project" toml:"project"`
		ContainerEngine ContainerEngine  `json:"container_engine" mapstructure:"container_engine" toml:"container_engine"`
		EnvFile         string           `json:"env_file" mapstructure:"env_file" toml:"env_file"`
		AppService      string           `json:"app_service" mapstructure:"app_service" toml:"app_service"`
		Volumes         VolumesConfig    `json:"volumes" mapstructure:"volumes" toml:"volumes"`
		Image           ImageConfig      `json:"image" mapstructure:"image" toml:"image"`
		Topologies      TopologiesConfig `json:"topologies" mapstructure:"topologies" toml:"topologies"`
		UI              UIConfig         `json:"ui" mapstructure:"ui" toml:"ui"`

		// BaseDir anchors relative paths. It is the directory of the loaded
		// file, or the working directory when defaults are used.
		BaseDir string `json:"-" mapstructure:"-" toml:"-"`
		// SourcePath is the configuration file that was loaded, empty for defaults.
		SourcePath string `json:"-" mapstructure:"-" toml:"-"`
	}

	// VolumesConfig locates the persistent directory set.
	VolumesConfig struct {
		Root string `json:"root" mapstructure:"root" toml:"root"`
	}

	// ImageConfig describes the layered application image.
	ImageConfig struct {
		Repository string         `json:"repository" mapstructure:"repository" toml:"repository"`
		BaseImage  string         `json:"base_image" mapstructure:"base_image" toml:"base_image"`
		Context    string         `json:"context" mapstructure:"context" toml:"context"`
		Stages     []StageConfig  `json:"stages" mapstructure:"stages" toml:"stages"`
		Plugins    []PluginConfig `json:"plugins" mapstructure:"plugins" toml:"plugins"`
		// PluginInstall is a text/template rendered once per plugin into a
		// step of the last stage. Fields: .Name, .Source, .Version.
		PluginInstall string `json:"plugin_install" mapstructure:"plugin_install" toml:"plugin_install"`
	}

	// StageConfig is one build stage and its ordered installation steps.
	StageConfig struct {
		Name  string       `json:"name" mapstructure:"name" toml:"name"`
		Steps []StepConfig `json:"steps" mapstructure:"steps" toml:"steps"`
	}

	// StepConfig is a single RUN instruction.
	StepConfig struct {
		Name string `json:"name" mapstructure:"name" toml:"name"`
		Run  string `json:"run" mapstructure:"run" toml:"run"`
	}

	// PluginConfig is an independently versioned extension installed in the last stage.
	PluginConfig struct {
		Name    string `json:"name" mapstructure:"name" toml:"name"`
		Source  string `json:"source" mapstructure:"source" toml:"source"`
		Version string `json:"version" mapstructure:"version" toml:"version"`
	}

	// TopologiesConfig holds the compose files of both topologies.
	TopologiesConfig struct {
		Production  ProductionConfig  `json:"production" mapstructure:"production" toml:"production"`
		Development DevelopmentConfig `json:"development" mapstructure:"development" toml:"development"`
	}

	// ProductionConfig lists the compose files of the production topology.
	ProductionConfig struct {
		ComposeFiles []string `json:"compose_files" mapstructure:"compose_files" toml:"compose_files"`
	}

	// DevelopmentConfig is the additive overlay applied on top of production.
	DevelopmentConfig struct {
		OverlayFiles []string `json:"overlay_files" mapstructure:"overlay_files" toml:"overlay_files"`
		// SourceDir is the host source tree mounted by the overlay.
		SourceDir string `json:"source_dir" mapstructure:"source_dir" toml:"source_dir"`
	}

	// UIConfig contains output preferences.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose" toml:"verbose"`
	}
)

// String returns the engine name.
func (e ContainerEngine) String() string { return string(e) }

// Validate reports whether e names a supported engine.
func (e ContainerEngine) Validate() error {
	switch e {
	case ContainerEngineDocker, ContainerEnginePodman:
		return nil
	default:
		return fmt.Errorf("%w: unknown container engine %q", ErrInvalidConfig, e)
	}
}

// DefaultConfig returns the built-in CKAN stack layout.
func DefaultConfig() *Config {
	return &Config{
		Project:         "ckan",
		ContainerEngine: ContainerEngineDocker,
		EnvFile:         ".env",
		AppService:      "ckan",
		Volumes: VolumesConfig{
			Root: "volumes",
		},
		Image: ImageConfig{
			Repository: "stackctl/ckan",
			BaseImage:  "python:3.10-slim-bookworm",
			Context:    ".",
			Stages: []StageConfig{
				{
					Name: "base",
					Steps: []StepConfig{
						{
							Name: "system-packages",
							Run: "apt-get update && apt-get install -y --no-install-recommends " +
								"git build-essential libpq-dev libxml2-dev libxslt1-dev && rm -rf /var/lib/apt/lists/*",
						},
						{
							Name: "ckan",
							Run: `pip install --no-cache-dir "ckan[requirements]==${CKAN_VERSION}" && ` +
								`mkdir -p "${CKAN_HOME}" "${CKAN_STORAGE_PATH}" "${CKAN_CONFIG}"`,
						},
					},
				},
				{Name: "final"},
			},
			Plugins: []PluginConfig{
				{Name: "ckanext-scheming", Source: "git+https://github.com/ckan/ckanext-scheming.git", Version: "release-3.0.0"},
				{Name: "ckanext-dcat", Source: "git+https://github.com/ckan/ckanext-dcat.git", Version: "v1.5.1"},
			},
			PluginInstall: `pip install --no-cache-dir "{{.Source}}@{{.Version}}#egg={{.Name}}"`,
		},
		Topologies: TopologiesConfig{
			Production: ProductionConfig{
				ComposeFiles: []string{"docker-compose.yml"},
			},
			Development: DevelopmentConfig{
				OverlayFiles: []string{"docker-compose.dev.yml"},
				SourceDir:    "src",
			},
		},
		UI: UIConfig{
			Verbose: false,
		},
	}
}

// Resolve anchors a configured path to BaseDir. Absolute paths are returned cleaned.
func (c *Config) Resolve(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.BaseDir, path)
}

// ResolveAll applies Resolve to every path.
func (c *Config) ResolveAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = c.Resolve(p)
	}
	return out
}

// StageNames returns the configured stage names in build order.
func (c *Config) StageNames() []string {
	names := make([]string, len(c.Image.Stages))
	for i, s := range c.Image.Stages {
		names[i] = s.Name
	}
	return names
}

// Validate checks the constraints that span fields: engine name, unique stage
// and plugin names, and parseable image references.
func (c *Config) Validate() error {
	if err := c.ContainerEngine.Validate(); err != nil {
		return err
	}
	if len(c.Image.Stages) == 0 {
		return fmt.Errorf("%w: image.stages must declare at least one stage", ErrInvalidConfig)
	}

	seenStages := make(map[string]bool, len(c.Image.Stages))
	for i, s := range c.Image.Stages {
		if s.Name == "" {
			return fmt.Errorf("%w: image.stages[%d]: name is required", ErrInvalidConfig, i)
		}
		if seenStages[s.Name] {
			return fmt.Errorf("%w: image.stages[%d]: duplicate stage %q", ErrInvalidConfig, i, s.Name)
		}
		seenStages[s.Name] = true
	}

	seenPlugins := make(map[string]bool, len(c.Image.Plugins))
	for i, p := range c.Image.Plugins {
		if seenPlugins[p.Name] {
			return fmt.Errorf("%w: image.plugins[%d]: duplicate plugin %q", ErrInvalidConfig, i, p.Name)
		}
		seenPlugins[p.Name] = true
	}

	if _, err := name.NewRepository(c.Image.Repository); err != nil {
		return fmt.Errorf("%w: image.repository: %w", ErrInvalidConfig, err)
	}
	if _, err := name.ParseReference(c.Image.BaseImage); err != nil {
		return fmt.Errorf("%w: image.base_image: %w", ErrInvalidConfig, err)
	}
	if len(c.Topologies.Production.ComposeFiles) == 0 {
		return fmt.Errorf("%w: topologies.production.compose_files must not be empty", ErrInvalidConfig)
	}
	return nil
}
