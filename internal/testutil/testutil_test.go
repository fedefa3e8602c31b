// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"stackctl/internal/container"
)

func TestContainerParallelism(t *testing.T) {
	t.Parallel()
	env := func(v string) func(string) string {
		return func(string) string { return v }
	}

	if got := containerParallelism(env("4")); got != 4 {
		t.Errorf("override: got %d, want 4", got)
	}
	fallback := min(runtime.GOMAXPROCS(0), 2)
	for _, v := range []string{"", "0", "-1", "many"} {
		if got := containerParallelism(env(v)); got != fallback {
			t.Errorf("%q: got %d, want %d", v, got, fallback)
		}
	}
}

func TestFakeEngine_BuildStoresLabels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	MustWriteFile(t, filepath.Join(dir, "Dockerfile"), "FROM scratch\nLABEL org.stackctl.stage=\"base\"\nLABEL org.stackctl.cache-key=\"abc\"\n")

	f := NewFakeEngine()
	ctx := context.Background()
	if err := f.Build(ctx, container.BuildOptions{ContextDir: dir, Dockerfile: "Dockerfile", Tag: "ckan:2.10-base"}); err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}

	labels, ok, err := f.ImageLabels(ctx, "ckan:2.10-base")
	if err != nil || !ok {
		t.Fatalf("ImageLabels() = %v, %v", ok, err)
	}
	want := map[string]string{"org.stackctl.stage": "base", "org.stackctl.cache-key": "abc"}
	if !maps.Equal(labels, want) {
		t.Errorf("labels = %v, want %v", labels, want)
	}
}

func TestFakeEngine_FailedBuildStoresNothing(t *testing.T) {
	t.Parallel()
	f := NewFakeEngine()
	f.FailBuild["ckan:2.10"] = errors.New("exit status 1")

	err := f.Build(context.Background(), container.BuildOptions{ContextDir: t.TempDir(), Dockerfile: "Dockerfile", Tag: "ckan:2.10"})
	if err == nil {
		t.Fatal("expected injected failure")
	}
	if ok, _ := f.ImageExists(context.Background(), "ckan:2.10"); ok {
		t.Error("a failed build must not tag the image")
	}
	if !slices.Equal(f.BuiltTags(), []string{"ckan:2.10"}) {
		t.Errorf("BuiltTags() = %v", f.BuiltTags())
	}
}

func TestFakeEngine_Compose(t *testing.T) {
	t.Parallel()
	f := NewFakeEngine()
	f.FailCompose["down"] = errors.New("exit status 1")
	ctx := context.Background()

	if err := f.Compose(ctx, container.ComposeOptions{Args: []string{"up", "-d"}}); err != nil {
		t.Fatal(err)
	}
	if err := f.Compose(ctx, container.ComposeOptions{Args: []string{"down"}}); err == nil {
		t.Error("expected injected compose failure")
	}
	if got := f.CallLog(); !slices.Equal(got, []string{"compose up -d", "compose down"}) {
		t.Errorf("CallLog() = %v", got)
	}

	f.Reset()
	if len(f.CallLog()) != 0 {
		t.Error("Reset() must clear calls")
	}
}
