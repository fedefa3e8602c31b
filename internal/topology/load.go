// SPDX-License-Identifier: MPL-2.0

package topology

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"stackctl/internal/envset"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// Report summarizes a validated topology set.
type Report struct {
	// Services are the production service names, sorted.
	Services []string
	// OverlayMounts are the "service:target" volume mounts only development adds.
	OverlayMounts []string
}

// Load parses the topology's compose files in order, interpolating like
// compose does: from the process environment, falling back to env.
func Load(ctx context.Context, t *Topology, env *envset.Environment) (*types.Project, error) {
	files := make([]types.ConfigFile, 0, len(t.Files))
	for _, f := range t.Files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, &InvalidTopologyError{Kind: t.Kind, Reason: "cannot read compose file", Err: err}
		}

		var dict map[string]any
		if err := yaml.Unmarshal(content, &dict); err != nil {
			return nil, &InvalidTopologyError{Kind: t.Kind, Reason: "invalid YAML in " + f, Err: err}
		}
		if dict == nil {
			return nil, &InvalidTopologyError{Kind: t.Kind, Reason: "empty compose file " + f}
		}

		files = append(files, types.ConfigFile{Filename: f, Content: content, Config: dict})
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		WorkingDir:  t.Dir,
		ConfigFiles: files,
		Environment: composeEnvironment(env.BuildArgs(), os.Environ()),
	}, func(opts *loader.Options) {
		opts.SetProjectName(t.Project, true)
		opts.ResolvePaths = true
	})
	if err != nil {
		return nil, &InvalidTopologyError{Kind: t.Kind, Reason: "compose definition does not load", Err: err}
	}
	return project, nil
}

// composeEnvironment merges the environment set with environ ("KEY=value"
// entries). Process variables win, as they do for compose itself.
func composeEnvironment(set map[string]string, environ []string) types.Mapping {
	env := types.Mapping(maps.Clone(set))
	if env == nil {
		env = types.Mapping{}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// Validate loads both topologies and checks that the configured app service
// exists and that development only adds to production: every service keeps
// its image, build and production volume mounts.
func Validate(ctx context.Context, s *Set, env *envset.Environment) (*Report, error) {
	prod, err := Load(ctx, s.Production, env)
	if err != nil {
		return nil, err
	}
	dev, err := Load(ctx, s.Development, env)
	if err != nil {
		return nil, err
	}

	if _, ok := prod.Services[s.Production.AppService]; !ok {
		return nil, &InvalidTopologyError{
			Kind:   Production,
			Reason: fmt.Sprintf("app service %q is not defined", s.Production.AppService),
		}
	}

	report := &Report{Services: slices.Sorted(maps.Keys(prod.Services))}
	for _, svcName := range report.Services {
		p := prod.Services[svcName]
		d, ok := dev.Services[svcName]
		if !ok {
			return nil, &InvalidTopologyError{Kind: Development, Reason: fmt.Sprintf("service %q is missing", svcName)}
		}
		if p.Image != d.Image {
			return nil, &InvalidTopologyError{
				Kind:   Development,
				Reason: fmt.Sprintf("service %q replaces image %q with %q", svcName, p.Image, d.Image),
			}
		}
		if !sameBuild(p.Build, d.Build) {
			return nil, &InvalidTopologyError{Kind: Development, Reason: fmt.Sprintf("service %q changes its build", svcName)}
		}

		devMounts := mounts(d)
		for target, source := range mounts(p) {
			if devSource, ok := devMounts[target]; !ok || devSource != source {
				return nil, &InvalidTopologyError{
					Kind:   Development,
					Reason: fmt.Sprintf("service %q drops or replaces the mount at %s", svcName, target),
				}
			}
			delete(devMounts, target)
		}
		for _, target := range slices.Sorted(maps.Keys(devMounts)) {
			report.OverlayMounts = append(report.OverlayMounts, svcName+":"+target)
		}
	}

	for svcName := range dev.Services {
		if _, ok := prod.Services[svcName]; !ok {
			return nil, &InvalidTopologyError{
				Kind:   Development,
				Reason: fmt.Sprintf("service %q is not defined in production", svcName),
			}
		}
	}

	return report, nil
}

// mounts maps each volume target of svc to its source.
func mounts(svc types.ServiceConfig) map[string]string {
	out := make(map[string]string, len(svc.Volumes))
	for _, v := range svc.Volumes {
		out[v.Target] = v.Source
	}
	return out
}

func sameBuild(a, b *types.BuildConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Context == b.Context && a.Dockerfile == b.Dockerfile
}
