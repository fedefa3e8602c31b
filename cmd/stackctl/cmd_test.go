// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/dag"
	"stackctl/internal/entry"
	"stackctl/internal/envset"
	"stackctl/internal/imagebuild"
	"stackctl/internal/issue"
	"stackctl/internal/lifecycle"
	"stackctl/internal/lock"
	"stackctl/internal/privilege"
	"stackctl/internal/testutil"
	"stackctl/internal/topology"
)

const productionCompose = `services:
  ckan:
    image: stackctl/ckan:${CKAN_VERSION}
    volumes:
      - ./volumes/ckan_home:${CKAN_HOME}
      - ./volumes/ckan_storage:${CKAN_STORAGE_PATH}
  db:
    image: postgres:15
    volumes:
      - ./volumes/pg_data:/var/lib/postgresql/data
`

const developmentOverlay = `services:
  ckan:
    volumes:
      - ./src:/srv/app/src
`

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// newStackDir writes a default-layout stack (compose files and .env) into a
// temporary directory.
func newStackDir(t *testing.T, env map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "docker-compose.yml"), productionCompose)
	testutil.MustWriteFile(t, filepath.Join(dir, "docker-compose.dev.yml"), developmentOverlay)
	testutil.WriteEnvFile(t, dir, env)
	return dir
}

// runCLI runs stackctl in dir with engine standing in for docker.
func runCLI(t *testing.T, dir string, engine container.Engine, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app, err := NewApp(Dependencies{
		WorkDir: dir,
		Stdout:  &stdout,
		Stderr:  &stderr,
		NewEngine: func(config.ContainerEngine) (container.Engine, error) {
			if engine == nil {
				return nil, &container.EngineNotAvailableError{Engine: "docker", Reason: "test"}
			}
			return engine, nil
		},
		// Everything under t.TempDir is already ours; escalation must never be needed.
		Privilege: []privilege.Option{privilege.WithLookPath(func(string) (string, error) {
			return "", os.ErrNotExist
		})},
	})
	if err != nil {
		t.Fatalf("NewApp() returned error: %v", err)
	}

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err = root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestRootCommand_RegistersEveryTarget(t *testing.T) {
	t.Parallel()
	app, err := NewApp(Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	root := NewRootCommand(app)

	for _, target := range lifecycle.Catalog(nil) {
		c, _, err := root.Find([]string{target.Name})
		if err != nil || c.Name() != target.Name {
			t.Errorf("target %q is not a command: %v", target.Name, err)
			continue
		}
		wantGroup := groupProduction
		if strings.HasPrefix(target.Name, lifecycle.DevPrefix) {
			wantGroup = groupDevelopment
		}
		if c.GroupID != wantGroup {
			t.Errorf("%s group = %q, want %q", target.Name, c.GroupID, wantGroup)
		}
	}
	for _, name := range []string{"build", "entrypoint", "targets", "config", "env"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestTargets_ListsGraph(t *testing.T) {
	t.Parallel()
	res := runCLI(t, t.TempDir(), nil, "targets")
	if res.err != nil {
		t.Fatalf("targets failed: %v", res.err)
	}
	for _, want := range []string{"dev-full-rebuild", "requires: dev-clean, dev-init", "(destructive)", "chown-volume-src"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestDryRun_PrintsOrderWithoutSideEffects(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())
	engine := testutil.NewFakeEngine()

	res := runCLI(t, dir, engine, "--dry-run", "dev-full-rebuild")
	if res.err != nil {
		t.Fatalf("dry run failed: %v\n%s", res.err, res.stderr)
	}

	want := []string{"dev-chown-volumes", "dev-down-v", "dev-clean", "dev-init", "dev-full-rebuild"}
	last := -1
	for _, name := range want {
		idx := strings.Index(res.stdout, ". "+name)
		if idx < 0 {
			t.Fatalf("order is missing %s:\n%s", name, res.stdout)
		}
		if idx < last {
			t.Errorf("%s printed out of order:\n%s", name, res.stdout)
		}
		last = idx
	}
	if !strings.Contains(res.stdout, "build image (invalidate base,final)") {
		t.Errorf("expected the all-layers build step:\n%s", res.stdout)
	}

	if calls := engine.CallLog(); len(calls) != 0 {
		t.Errorf("dry run touched the engine: %v", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "volumes")); !os.IsNotExist(err) {
		t.Errorf("dry run created the volume root: %v", err)
	}
}

func TestDryRun_UnknownTarget(t *testing.T) {
	t.Parallel()
	res := runCLI(t, t.TempDir(), nil, "--dry-run", "deploy")
	if res.err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunTarget_DevUp(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())
	engine := testutil.NewFakeEngine()

	res := runCLI(t, dir, engine, "dev-up")
	if res.err != nil {
		t.Fatalf("dev-up failed: %v\n%s", res.err, res.stderr)
	}

	if calls := engine.CallLog(); !slices.Equal(calls, []string{"compose up -d"}) {
		t.Errorf("engine calls = %v", calls)
	}
	compose := engine.Composes[0]
	if compose.Project != "ckan" || len(compose.Files) != 2 || compose.EnvFile != filepath.Join(dir, ".env") {
		t.Errorf("unexpected compose options %+v", compose)
	}
	for _, name := range []string{"ckan_config", "pg_data", "neo4j_data"} {
		if info, err := os.Stat(filepath.Join(dir, "volumes", name)); err != nil || !info.IsDir() {
			t.Errorf("volume %s not created: %v", name, err)
		}
	}
	if !strings.Contains(res.stdout, "dev-up") {
		t.Errorf("expected success line, got %q", res.stdout)
	}
}

func TestRunTarget_VerboseLogsEngineVersion(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())

	quiet := runCLI(t, dir, testutil.NewFakeEngine(), "dev-up")
	if quiet.err != nil {
		t.Fatalf("dev-up failed: %v\n%s", quiet.err, quiet.stderr)
	}
	if strings.Contains(quiet.stderr, "0.0.0-fake") {
		t.Errorf("engine version logged without --verbose:\n%s", quiet.stderr)
	}

	verbose := runCLI(t, dir, testutil.NewFakeEngine(), "--verbose", "dev-up")
	if verbose.err != nil {
		t.Fatalf("dev-up failed: %v\n%s", verbose.err, verbose.stderr)
	}
	if !strings.Contains(verbose.stderr, "0.0.0-fake") || !strings.Contains(verbose.stderr, "using container engine") {
		t.Errorf("expected engine version in verbose log:\n%s", verbose.stderr)
	}
}

func TestRunTarget_LockFileBesideVolumeRoot(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())

	if res := runCLI(t, dir, testutil.NewFakeEngine(), "dev-up"); res.err != nil {
		t.Fatalf("dev-up failed: %v\n%s", res.err, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, ".volumes.stackctl.lock")); err != nil {
		t.Errorf("expected the lock file next to the volume root: %v", err)
	}
}

func TestRunTarget_MissingKeyFailsBeforeSideEffects(t *testing.T) {
	t.Parallel()
	values := testutil.EnvValues()
	delete(values, envset.KeyStoragePath)
	dir := newStackDir(t, values)
	engine := testutil.NewFakeEngine()

	res := runCLI(t, dir, engine, "up")
	if !errors.Is(res.err, envset.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", res.err)
	}
	var exitErr *ExitError
	if !errors.As(res.err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("expected ExitError with code 1, got %v", res.err)
	}
	if !strings.Contains(res.stderr, envset.KeyStoragePath) {
		t.Errorf("stderr should name the missing key:\n%s", res.stderr)
	}
	if calls := engine.CallLog(); len(calls) != 0 {
		t.Errorf("engine was used: %v", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "volumes")); !os.IsNotExist(err) {
		t.Errorf("volume root was created: %v", err)
	}
}

func TestRunTarget_ComposeFailure(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())
	engine := testutil.NewFakeEngine()
	engine.FailCompose["down"] = errors.New("exit status 1")

	res := runCLI(t, dir, engine, "down")
	if !errors.Is(res.err, lifecycle.ErrTargetFailure) {
		t.Fatalf("expected ErrTargetFailure, got %v", res.err)
	}
}

func TestRunTarget_NoEngine(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())

	res := runCLI(t, dir, nil, "up")
	if !errors.Is(res.err, container.ErrEngineNotAvailable) {
		t.Fatalf("expected ErrEngineNotAvailable, got %v", res.err)
	}
}

func TestBuild_DryRunPlansWithoutBuilding(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())
	engine := testutil.NewFakeEngine()

	res := runCLI(t, dir, engine, "build", "--all-layers", "--dry-run")
	if res.err != nil {
		t.Fatalf("build plan failed: %v\n%s", res.err, res.stderr)
	}
	if tags := engine.BuiltTags(); len(tags) != 0 {
		t.Errorf("dry run built %v", tags)
	}
	for _, want := range []string{"base", "final", "rebuild", "stackctl/ckan:2.10-base", "stackctl/ckan:2.10", "(pull)"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("plan missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestBuild_FinalLayerOnlyByDefault(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())
	engine := testutil.NewFakeEngine()

	if res := runCLI(t, dir, engine, "build", "--all-layers"); res.err != nil {
		t.Fatalf("first build failed: %v\n%s", res.err, res.stderr)
	}
	engine.Reset()

	res := runCLI(t, dir, engine, "build")
	if res.err != nil {
		t.Fatalf("build failed: %v\n%s", res.err, res.stderr)
	}
	if tags := engine.BuiltTags(); !slices.Equal(tags, []string{"stackctl/ckan:2.10"}) {
		t.Errorf("built %v, want only the final layer", tags)
	}
	if !engine.Builds[0].NoCache {
		t.Error("final layer must rebuild without the layer cache")
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"cue", "toml"} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()
			res := runCLI(t, t.TempDir(), nil, "config", "show", "--format", format)
			if res.err != nil {
				t.Fatalf("config show failed: %v", res.err)
			}
			if !strings.Contains(res.stdout, "stackctl/ckan") || !strings.Contains(res.stdout, "project") {
				t.Errorf("unexpected output:\n%s", res.stdout)
			}
		})
	}

	res := runCLI(t, t.TempDir(), nil, "config", "show", "--format", "yaml")
	if res.err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEnvCheck(t *testing.T) {
	t.Parallel()
	dir := newStackDir(t, testutil.EnvValues())

	res := runCLI(t, dir, nil, "env", "check")
	if res.err != nil {
		t.Fatalf("env check failed: %v\n%s", res.err, res.stderr)
	}
	if !strings.Contains(res.stdout, "/var/lib/ckan") {
		t.Errorf("expected values in output:\n%s", res.stdout)
	}

	res = runCLI(t, dir, nil, "env", "check", "--env-file", filepath.Join(dir, "missing.env"))
	if !errors.Is(res.err, envset.ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig for a missing file, got %v", res.err)
	}
}

func TestEntrypoint_ForegroundFailure(t *testing.T) {
	t.Parallel()
	res := runCLI(t, t.TempDir(), nil, "entrypoint", "--background", "sleep 30", "--foreground", "false")

	var sf *entry.StartupFailureError
	if !errors.As(res.err, &sf) || sf.Phase != entry.PhaseForeground {
		t.Fatalf("expected foreground startup failure, got %v", res.err)
	}
}

func TestEntrypoint_FlagValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing foreground", args: []string{"entrypoint", "--background", "sleep 1"}},
		{name: "two probes", args: []string{"entrypoint", "--background", "sleep 1", "--foreground", "true", "--ready-tcp", "localhost:1", "--ready-delay", "1s"}},
		{name: "zero timeout", args: []string{"entrypoint", "--background", "sleep 1", "--foreground", "true", "--ready-timeout", "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if res := runCLI(t, t.TempDir(), nil, tt.args...); res.err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	missing := &envset.MissingConfigError{Keys: []string{envset.KeyVersion}}
	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{name: "missing key", err: missing, want: issue.MissingConfigId},
		{name: "missing key inside target", err: &lifecycle.TargetFailureError{Requested: "up", Target: "up", Step: "s", Err: missing}, want: issue.MissingConfigId},
		{name: "locked", err: fmt.Errorf("%w (/run/x.lock)", lock.ErrLocked), want: issue.StackLockedId},
		{name: "engine", err: &container.EngineNotAvailableError{Engine: "docker"}, want: issue.ContainerEngineNotFoundId},
		{name: "permission", err: &privilege.PermissionDeniedError{Path: "/v", Err: os.ErrPermission}, want: issue.PermissionDeniedId},
		{name: "build", err: &lifecycle.TargetFailureError{Target: "rebuild", Err: &imagebuild.BuildFailureError{Stage: "final", Err: errors.New("boom")}}, want: issue.BuildFailureId},
		{name: "topology", err: &topology.InvalidTopologyError{Kind: topology.Development, Reason: "x"}, want: issue.TopologyInvalidId},
		{name: "startup", err: &entry.StartupFailureError{Phase: entry.PhaseForeground, Err: errors.New("exit status 1")}, want: issue.StartupFailureId},
		{name: "cycle", err: fmt.Errorf("invalid target graph: %w", &dag.CycleError{Cycle: []string{"a", "b"}}), want: issue.DependencyCycleId},
		{name: "unknown target", err: fmt.Errorf("%w %q", lifecycle.ErrUnknownTarget, "deploy"), want: issue.UnknownTargetId},
		{name: "target", err: &lifecycle.TargetFailureError{Target: "down", Err: errors.New("exit status 1")}, want: issue.TargetFailureId},
		{name: "config", err: fmt.Errorf("%w: bad engine", config.ErrInvalidConfig), want: issue.ConfigLoadFailedId},
		{name: "unclassified", err: errors.New("boom"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := &ExitError{Code: 3, Err: cause}
	if !errors.Is(err, cause) || err.Error() != "boom" {
		t.Errorf("unexpected ExitError behaviour: %v", err)
	}
	if got := (&ExitError{Code: 2}).Error(); got != "exit status 2" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUsesCompose(t *testing.T) {
	t.Parallel()
	if usesCompose([]string{"init", "chown-volumes"}) {
		t.Error("init and chown do not use compose")
	}
	if !usesCompose([]string{"dev-chown-volumes", "dev-down-v", "dev-clean"}) {
		t.Error("dev-down-v uses compose")
	}
}
