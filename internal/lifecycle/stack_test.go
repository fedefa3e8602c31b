// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"stackctl/internal/envset"
	"stackctl/internal/imagebuild"
	"stackctl/internal/privilege"
	"stackctl/internal/testutil"
	"stackctl/internal/volume"
)

var stages = []string{"base", "final"}

type (
	// callLog is shared by the fakes so tests can assert on global ordering.
	callLog struct {
		calls []string
		fail  map[string]error
	}

	fakeVolumes struct{ log *callLog }

	fakeBuilder struct{ log *callLog }

	fakeComposer struct {
		log    *callLog
		prefix string
	}

	// selfChowner owns everything as the current user, so no escalation happens.
	selfChowner struct{ chowned []string }
)

func (l *callLog) record(call string) error {
	l.calls = append(l.calls, call)
	return l.fail[call]
}

func (f fakeVolumes) Ensure(context.Context) (*volume.EnsureReport, error) {
	return &volume.EnsureReport{}, f.log.record("ensure")
}

func (f fakeVolumes) FixOwnership(_ context.Context, scope volume.Scope) (*volume.OwnershipReport, error) {
	return &volume.OwnershipReport{}, f.log.record("chown " + scope.String())
}

func (f fakeVolumes) Remove(context.Context) (*volume.RemoveReport, error) {
	return &volume.RemoveReport{}, f.log.record("remove")
}

func (f fakeBuilder) Build(_ context.Context, scope imagebuild.Scope, _ *envset.Environment) (*imagebuild.Artifact, error) {
	return &imagebuild.Artifact{}, f.log.record("build " + scope.String())
}

func (f fakeComposer) Up(context.Context) error { return f.log.record(f.prefix + "up") }

func (f fakeComposer) Down(context.Context) error { return f.log.record(f.prefix + "down") }

func (f fakeComposer) DownVolumes(context.Context) error { return f.log.record(f.prefix + "down -v") }

func (f fakeComposer) Recreate(_ context.Context, service string) error {
	return f.log.record(f.prefix + "recreate " + service)
}

func (s *selfChowner) Target() privilege.Identity {
	return privilege.Identity{UID: os.Getuid(), GID: os.Getgid()}
}

func (s *selfChowner) Chown(_ context.Context, path string, _ bool) error {
	s.chowned = append(s.chowned, path)
	return nil
}

func newFakeStack(t *testing.T, log *callLog) *Graph {
	t.Helper()
	g, err := NewStack(Deps{
		Volumes:     fakeVolumes{log: log},
		Builder:     fakeBuilder{log: log},
		Env:         testutil.NewEnvironment(t, nil),
		Stages:      stages,
		Production:  fakeComposer{log: log, prefix: "prod "},
		Development: fakeComposer{log: log, prefix: "dev "},
		SourceDir:   "/stack/src",
	})
	if err != nil {
		t.Fatalf("NewStack() returned error: %v", err)
	}
	return g
}

func TestNewStack_DefinesEveryCommand(t *testing.T) {
	t.Parallel()
	g := newFakeStack(t, &callLog{})

	shared := []string{"init", "chown-volumes", "chown-volume-src", "up", "down", "down-v", "rebuild", "rebuild-all"}
	var want []string
	want = append(want, shared...)
	for _, n := range shared {
		want = append(want, DevPrefix+n)
	}
	want = append(want, "dev-clean", "dev-rebuild-clean", "dev-full-rebuild")

	var got []string
	for _, target := range g.Targets() {
		got = append(got, target.Name)
		if target.Description == "" {
			t.Errorf("target %s has no description", target.Name)
		}
	}
	if !slices.Equal(got, want) {
		t.Errorf("targets = %v, want %v", got, want)
	}
}

func TestNewStack_Bodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		want   []string
	}{
		{target: "init", want: []string{"ensure"}},
		{target: "chown-volumes", want: []string{"chown all volumes"}},
		{target: "chown-volume-src", want: []string{"chown src"}},
		{target: "up", want: []string{"ensure", "prod up"}},
		{target: "down", want: []string{"prod down"}},
		{target: "down-v", want: []string{"prod down -v"}},
		{target: "rebuild", want: []string{"build final", "prod recreate "}},
		{target: "rebuild-all", want: []string{"build base,final", "prod recreate "}},
		{target: "dev-up", want: []string{"ensure", "dev up"}},
		{target: "dev-down-v", want: []string{"dev down -v"}},
		{target: "dev-rebuild", want: []string{"build final", "dev recreate "}},
		{target: "dev-clean", want: []string{"chown all volumes", "dev down -v", "remove"}},
		{
			target: "dev-rebuild-clean",
			want:   []string{"chown all volumes", "dev down -v", "remove", "ensure", "build final", "dev up"},
		},
		{
			target: "dev-full-rebuild",
			want:   []string{"chown all volumes", "dev down -v", "remove", "ensure", "build base,final", "dev up"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			log := &callLog{}
			g := newFakeStack(t, log)
			if err := g.Run(context.Background(), tt.target); err != nil {
				t.Fatalf("Run(%s) returned error: %v", tt.target, err)
			}
			if !slices.Equal(log.calls, tt.want) {
				t.Errorf("calls = %q, want %q", log.calls, tt.want)
			}
		})
	}
}

func TestNewStack_FullRebuildOrder(t *testing.T) {
	t.Parallel()
	g := newFakeStack(t, &callLog{})

	order, err := g.Order("dev-full-rebuild")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"dev-chown-volumes", "dev-down-v", "dev-clean", "dev-init", "dev-full-rebuild"}
	if !slices.Equal(order, want) {
		t.Errorf("Order() = %v, want %v", order, want)
	}
}

func TestNewStack_PrerequisiteFailureAbortsChain(t *testing.T) {
	t.Parallel()
	cause := privilege.ErrPermissionDenied
	log := &callLog{fail: map[string]error{"chown all volumes": cause}}
	g := newFakeStack(t, log)

	err := g.Run(context.Background(), "dev-full-rebuild")
	if !errors.Is(err, ErrTargetFailure) || !errors.Is(err, privilege.ErrPermissionDenied) {
		t.Fatalf("expected target failure wrapping permission denied, got %v", err)
	}
	if !slices.Equal(log.calls, []string{"chown all volumes"}) {
		t.Errorf("nothing may run after the failing prerequisite, ran %v", log.calls)
	}
}

func TestNewStack_IncompleteDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewStack(Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

// TestFullResetRoundTrip runs the real provisioner: a full reset followed by
// stop and start leaves the same directory set as a fresh init.
func TestFullResetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newStack := func(root string) *Graph {
		set, err := volume.NewSet(root)
		if err != nil {
			t.Fatal(err)
		}
		log := &callLog{}
		g, err := NewStack(Deps{
			Volumes:     volume.NewProvisioner(set, &selfChowner{}),
			Builder:     fakeBuilder{log: log},
			Env:         testutil.NewEnvironment(t, nil),
			Stages:      stages,
			Production:  fakeComposer{log: log, prefix: "prod "},
			Development: fakeComposer{log: log, prefix: "dev "},
			SourceDir:   filepath.Join(root, "..", "src"),
		})
		if err != nil {
			t.Fatal(err)
		}
		return g
	}

	freshRoot := filepath.Join(t.TempDir(), "volumes")
	if err := newStack(freshRoot).Run(ctx, "init"); err != nil {
		t.Fatal(err)
	}
	fresh := testutil.MustReadDirNames(t, freshRoot)

	root := filepath.Join(t.TempDir(), "volumes")
	g := newStack(root)
	// Leave some state behind so the reset has something to delete.
	testutil.MustWriteFile(t, filepath.Join(root, volume.PGData, "PG_VERSION"), "15\n")
	for _, target := range []string{"dev-full-rebuild", "dev-down", "dev-up"} {
		if err := g.Run(ctx, target); err != nil {
			t.Fatalf("Run(%s) returned error: %v", target, err)
		}
	}

	got := testutil.MustReadDirNames(t, root)
	if !slices.Equal(got, fresh) {
		t.Errorf("directory set after round trip = %v, want %v", got, fresh)
	}
	if len(testutil.MustReadDirNames(t, filepath.Join(root, volume.PGData))) != 0 {
		t.Error("reset must delete directory contents")
	}
}

func TestCatalog_MatchesStack(t *testing.T) {
	t.Parallel()
	g := newFakeStack(t, &callLog{})

	var catalog []string
	for _, target := range Catalog(stages) {
		catalog = append(catalog, target.Name)
	}
	var bound []string
	for _, target := range g.Targets() {
		bound = append(bound, target.Name)
	}
	if !slices.Equal(catalog, bound) {
		t.Errorf("Catalog() = %v, stack = %v", catalog, bound)
	}

	for _, target := range Catalog(stages) {
		if target.Name != "rebuild" {
			continue
		}
		if got := target.Steps[0].Name; got != "build image (invalidate final)" {
			t.Errorf("rebuild step = %q", got)
		}
	}
}
