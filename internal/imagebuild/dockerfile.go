// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"stackctl/internal/config"
)

const (
	// CacheKeyLabel holds a stage's cache key on the built image.
	CacheKeyLabel = "org.stackctl.cache-key"
	// StageLabel holds the stage name on the built image.
	StageLabel = "org.stackctl.stage"
)

type (
	// Stage is one build stage with its ordered RUN steps.
	Stage struct {
		Name  string
		Steps []config.StepConfig
	}

	// pluginData is the data passed to the plugin install template.
	pluginData struct {
		Name    string
		Source  string
		Version string
	}
)

// StagesFromConfig returns the configured stages in build order, with one
// step per plugin appended to the last stage.
func StagesFromConfig(img config.ImageConfig) ([]Stage, error) {
	if len(img.Stages) == 0 {
		return nil, fmt.Errorf("no image stages configured")
	}

	stages := make([]Stage, len(img.Stages))
	for i, s := range img.Stages {
		stages[i] = Stage{Name: s.Name, Steps: slices.Clone(s.Steps)}
	}

	if len(img.Plugins) == 0 {
		return stages, nil
	}

	tmpl, err := template.New("plugin_install").Option("missingkey=error").Parse(img.PluginInstall)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image.plugin_install: %w", err)
	}

	last := &stages[len(stages)-1]
	for _, p := range img.Plugins {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, pluginData{Name: p.Name, Source: p.Source, Version: p.Version}); err != nil {
			return nil, fmt.Errorf("failed to render install step for plugin %s: %w", p.Name, err)
		}
		last.Steps = append(last.Steps, config.StepConfig{Name: p.Name, Run: buf.String()})
	}
	return stages, nil
}

// dockerfileBody renders a stage without its cache-key label. Every build
// argument is declared so RUN steps can expand it.
func dockerfileBody(from string, stage Stage, argKeys []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", from)

	for _, k := range argKeys {
		fmt.Fprintf(&sb, "ARG %s\n", k)
	}
	if len(argKeys) > 0 {
		sb.WriteString("\n")
	}

	for _, step := range stage.Steps {
		if step.Name != "" {
			fmt.Fprintf(&sb, "# %s\n", step.Name)
		}
		fmt.Fprintf(&sb, "RUN %s\n\n", step.Run)
	}

	fmt.Fprintf(&sb, "LABEL %s=%q\n", StageLabel, stage.Name)
	return sb.String()
}

// withCacheKey appends the cache-key label to a rendered body.
func withCacheKey(body, key string) string {
	return body + fmt.Sprintf("LABEL %s=%q\n", CacheKeyLabel, key)
}

// cacheKey hashes the parent stage key, the stage's Dockerfile body and the
// build arguments in key order.
func cacheKey(parent, body string, args map[string]string) string {
	h := sha256.New()
	h.Write([]byte("parent:" + parent + "\n"))
	h.Write([]byte("dockerfile:" + body + "\n"))
	for _, k := range slices.Sorted(maps.Keys(args)) {
		h.Write([]byte("arg:" + k + "=" + args[k] + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
