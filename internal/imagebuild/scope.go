// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"fmt"
	"slices"
	"strings"
)

// Scope is the set of stages forced to rebuild without the layer cache.
// The zero value invalidates nothing.
type Scope struct {
	names []string
}

// Invalidate returns a scope invalidating the named stages.
func Invalidate(names ...string) Scope {
	var s Scope
	for _, n := range names {
		if n != "" && !slices.Contains(s.names, n) {
			s.names = append(s.names, n)
		}
	}
	return s
}

// FinalLayerOnly invalidates the last of stages, leaving earlier caches intact.
func FinalLayerOnly(stages []string) Scope {
	if len(stages) == 0 {
		return Scope{}
	}
	return Invalidate(stages[len(stages)-1])
}

// AllLayers invalidates every stage.
func AllLayers(stages []string) Scope {
	return Invalidate(stages...)
}

// Names returns the explicitly invalidated stages.
func (s Scope) Names() []string {
	return slices.Clone(s.names)
}

// IsZero reports whether the scope invalidates nothing.
func (s Scope) IsZero() bool {
	return len(s.names) == 0
}

// String renders the scope for logs.
func (s Scope) String() string {
	if s.IsZero() {
		return "none"
	}
	return strings.Join(s.names, ",")
}

// Expand resolves the scope against the ordered stage list. The result holds
// one entry per stage; once a stage is invalidated every later stage is too.
func (s Scope) Expand(stages []string) ([]bool, error) {
	for _, n := range s.names {
		if !slices.Contains(stages, n) {
			return nil, fmt.Errorf("unknown stage %q in cache scope (stages: %s)", n, strings.Join(stages, ", "))
		}
	}

	out := make([]bool, len(stages))
	invalid := false
	for i, stage := range stages {
		if slices.Contains(s.names, stage) {
			invalid = true
		}
		out[i] = invalid
	}
	return out, nil
}
