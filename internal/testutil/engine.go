// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"stackctl/internal/container"
)

// Compile-time interface check
var _ container.Engine = (*FakeEngine)(nil)

var labelLine = regexp.MustCompile(`(?m)^LABEL (\S+)=("(?:[^"\\]|\\.)*")$`)

// FakeEngine is an in-memory container.Engine. Builds read the Dockerfile
// they are given and store its LABEL instructions on the tag, so cache-key
// reuse behaves as with a real engine.
type FakeEngine struct {
	mu sync.Mutex

	images map[string]map[string]string

	// Calls records every operation in order, e.g. "build ckan:2.10" or
	// "compose up -d".
	Calls []string
	// Builds records the options of every build.
	Builds []container.BuildOptions
	// Composes records the options of every compose invocation.
	Composes []container.ComposeOptions

	// FailBuild makes builds of the given tag fail.
	FailBuild map[string]error
	// FailCompose makes compose invocations whose first argument matches fail.
	FailCompose map[string]error
}

// NewFakeEngine returns an engine with no images.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		images:      map[string]map[string]string{},
		FailBuild:   map[string]error{},
		FailCompose: map[string]error{},
	}
}

// Name returns "fake".
func (f *FakeEngine) Name() string { return "fake" }

// Available always reports true.
func (f *FakeEngine) Available() bool { return true }

// Version returns a fixed version.
func (f *FakeEngine) Version(context.Context) (string, error) { return "0.0.0-fake", nil }

// Build records opts and stores the Dockerfile's labels on the tag.
func (f *FakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "build "+opts.Tag)
	opts.BuildArgs = maps.Clone(opts.BuildArgs)
	f.Builds = append(f.Builds, opts)

	if err := f.FailBuild[opts.Tag]; err != nil {
		return err
	}

	path := opts.Dockerfile
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.ContextDir, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fake build: %w", err)
	}

	labels := map[string]string{}
	for _, m := range labelLine.FindAllStringSubmatch(string(content), -1) {
		value, err := strconv.Unquote(m[2])
		if err != nil {
			return fmt.Errorf("fake build: bad label %s: %w", m[1], err)
		}
		labels[m[1]] = value
	}
	if opts.Tag != "" {
		f.images[opts.Tag] = labels
	}
	return nil
}

// ImageExists reports whether a build stored image.
func (f *FakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.images[image]
	return ok, nil
}

// ImageLabels returns the labels stored by the last build of image.
func (f *FakeEngine) ImageLabels(_ context.Context, image string) (map[string]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	labels, ok := f.images[image]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(labels), true, nil
}

// Compose records opts.
func (f *FakeEngine) Compose(_ context.Context, opts container.ComposeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, strings.TrimSpace("compose "+strings.Join(opts.Args, " ")))
	opts.Files = slices.Clone(opts.Files)
	opts.Args = slices.Clone(opts.Args)
	f.Composes = append(f.Composes, opts)

	if len(opts.Args) > 0 {
		if err := f.FailCompose[opts.Args[0]]; err != nil {
			return err
		}
	}
	return nil
}

// SetImage stores an image with labels, as if built earlier.
func (f *FakeEngine) SetImage(tag string, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[tag] = maps.Clone(labels)
}

// BuiltTags returns the tag of every build in order.
func (f *FakeEngine) BuiltTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tags := make([]string, len(f.Builds))
	for i, b := range f.Builds {
		tags[i] = b.Tag
	}
	return tags
}

// CallLog returns a copy of Calls.
func (f *FakeEngine) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Calls)
}

// Reset clears the recorded calls, keeping images.
func (f *FakeEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.Builds = nil
	f.Composes = nil
}
