// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stackctl/internal/issue"
	"stackctl/pkg/cueutil"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "stackctl"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "stack"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed stack_schema.cue
var stackSchema string

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	baseDir := opts.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = wd
	}

	resolvedPath := ""

	// --config is used exclusively when set.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'stackctl config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		localPath := filepath.Join(baseDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(localPath) {
			resolvedPath = localPath
		}
		// No file means defaults, not an error.
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'stackctl config show --help' for configuration options").
				Wrap(err).
				BuildError()
		}
		abs, err := filepath.Abs(resolvedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		resolvedPath = abs
		baseDir = filepath.Dir(abs)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseDir = baseDir
	cfg.SourcePath = resolvedPath

	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(displayPath(resolvedPath)).
			WithSuggestion("Ensure stage and plugin names are unique").
			WithSuggestion("Check that image.repository and image.base_image are valid image references").
			Wrap(err).
			BuildError()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("project", defaults.Project)
	v.SetDefault("container_engine", defaults.ContainerEngine)
	v.SetDefault("env_file", defaults.EnvFile)
	v.SetDefault("app_service", defaults.AppService)
	v.SetDefault("volumes.root", defaults.Volumes.Root)
	v.SetDefault("image.repository", defaults.Image.Repository)
	v.SetDefault("image.base_image", defaults.Image.BaseImage)
	v.SetDefault("image.context", defaults.Image.Context)
	v.SetDefault("image.stages", defaults.Image.Stages)
	v.SetDefault("image.plugins", defaults.Image.Plugins)
	v.SetDefault("image.plugin_install", defaults.Image.PluginInstall)
	v.SetDefault("topologies.production.compose_files", defaults.Topologies.Production.ComposeFiles)
	v.SetDefault("topologies.development.overlay_files", defaults.Topologies.Development.OverlayFiles)
	v.SetDefault("topologies.development.source_dir", defaults.Topologies.Development.SourceDir)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

// loadCUEIntoViper parses a CUE file, validates it against the #Stack schema,
// and merges its contents into Viper.
//
// Manual parsing instead of cueutil.ParseAndDecode: the file decodes into a
// map for Viper (so unset fields keep their defaults) and is validated with
// Concrete(false) because every field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(stackSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile stack schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Stack"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// GenerateCUE renders cfg as a stack.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// stackctl stack configuration\n\n")

	sb.WriteString(fmt.Sprintf("project:          %q\n", cfg.Project))
	sb.WriteString(fmt.Sprintf("container_engine: %q\n", cfg.ContainerEngine))
	sb.WriteString(fmt.Sprintf("env_file:         %q\n", cfg.EnvFile))
	sb.WriteString(fmt.Sprintf("app_service:      %q\n", cfg.AppService))

	sb.WriteString("\nvolumes: {\n")
	sb.WriteString(fmt.Sprintf("\troot: %q\n", cfg.Volumes.Root))
	sb.WriteString("}\n")

	sb.WriteString("\nimage: {\n")
	sb.WriteString(fmt.Sprintf("\trepository: %q\n", cfg.Image.Repository))
	sb.WriteString(fmt.Sprintf("\tbase_image: %q\n", cfg.Image.BaseImage))
	sb.WriteString(fmt.Sprintf("\tcontext:    %q\n", cfg.Image.Context))
	sb.WriteString("\tstages: [\n")
	for _, stage := range cfg.Image.Stages {
		if len(stage.Steps) == 0 {
			sb.WriteString(fmt.Sprintf("\t\t{name: %q},\n", stage.Name))
			continue
		}
		sb.WriteString(fmt.Sprintf("\t\t{\n\t\t\tname: %q\n\t\t\tsteps: [\n", stage.Name))
		for _, step := range stage.Steps {
			sb.WriteString(fmt.Sprintf("\t\t\t\t{name: %q, run: %q},\n", step.Name, step.Run))
		}
		sb.WriteString("\t\t\t]\n\t\t},\n")
	}
	sb.WriteString("\t]\n")
	if len(cfg.Image.Plugins) > 0 {
		sb.WriteString("\tplugins: [\n")
		for _, p := range cfg.Image.Plugins {
			sb.WriteString(fmt.Sprintf("\t\t{name: %q, source: %q, version: %q},\n", p.Name, p.Source, p.Version))
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString(fmt.Sprintf("\tplugin_install: %q\n", cfg.Image.PluginInstall))
	sb.WriteString("}\n")

	sb.WriteString("\ntopologies: {\n")
	sb.WriteString("\tproduction: {\n")
	sb.WriteString(fmt.Sprintf("\t\tcompose_files: %s\n", cueStringList(cfg.Topologies.Production.ComposeFiles)))
	sb.WriteString("\t}\n")
	sb.WriteString("\tdevelopment: {\n")
	sb.WriteString(fmt.Sprintf("\t\toverlay_files: %s\n", cueStringList(cfg.Topologies.Development.OverlayFiles)))
	if cfg.Topologies.Development.SourceDir != "" {
		sb.WriteString(fmt.Sprintf("\t\tsource_dir:    %q\n", cfg.Topologies.Development.SourceDir))
	}
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose))
	sb.WriteString("}\n")

	return sb.String()
}

func cueStringList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func displayPath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
