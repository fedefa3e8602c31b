// SPDX-License-Identifier: MPL-2.0

package topology

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"stackctl/internal/config"
	"stackctl/internal/testutil"
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

// newStack writes the compose files into a temporary stack directory and
// returns its configuration.
func newStack(t *testing.T, prod, overlay string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "docker-compose.yml"), prod)
	testutil.MustWriteFile(t, filepath.Join(dir, "docker-compose.dev.yml"), overlay)

	cfg := config.DefaultConfig()
	cfg.BaseDir = dir
	return cfg
}

func TestNewSet(t *testing.T) {
	t.Parallel()
	cfg := newStack(t, productionCompose, developmentOverlay)

	set, err := NewSet(cfg, "/stack/.env")
	if err != nil {
		t.Fatalf("NewSet() returned error: %v", err)
	}

	prodFile := filepath.Join(cfg.BaseDir, "docker-compose.yml")
	devFile := filepath.Join(cfg.BaseDir, "docker-compose.dev.yml")
	if !slices.Equal(set.Production.Files, []string{prodFile}) {
		t.Errorf("production files = %v", set.Production.Files)
	}
	if !slices.Equal(set.Development.Files, []string{prodFile, devFile}) {
		t.Errorf("development must be production plus the overlay, got %v", set.Development.Files)
	}
	if set.Development.EnvFile != "/stack/.env" || set.Production.Project != "ckan" {
		t.Errorf("unexpected topology %+v", set.Production)
	}
	if set.SourceDir != filepath.Join(cfg.BaseDir, "src") {
		t.Errorf("SourceDir = %q", set.SourceDir)
	}

	if got, err := set.Get(Development); err != nil || got != set.Development {
		t.Errorf("Get(Development) = %v, %v", got, err)
	}
	if _, err := set.Get("staging"); err == nil {
		t.Error("expected error for unknown topology")
	}
}

func TestNewSet_NoComposeFiles(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Topologies.Production.ComposeFiles = nil

	if _, err := NewSet(cfg, ".env"); !errors.Is(err, ErrInvalidTopology) {
		t.Fatalf("expected ErrInvalidTopology, got %v", err)
	}
}

func TestLoad_Interpolates(t *testing.T) {
	t.Parallel()
	cfg := newStack(t, productionCompose, developmentOverlay)
	set, err := NewSet(cfg, "")
	if err != nil {
		t.Fatal(err)
	}

	project, err := Load(context.Background(), set.Production, testutil.NewEnvironment(t, nil))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	ckan, ok := project.Services["ckan"]
	if !ok {
		t.Fatal("expected ckan service")
	}
	if ckan.Image != "stackctl/ckan:2.10" {
		t.Errorf("image = %q, want interpolated version", ckan.Image)
	}
	if _, ok := mounts(ckan)["/usr/lib/ckan"]; !ok {
		t.Errorf("expected CKAN_HOME mount, got %v", mounts(ckan))
	}
}

func TestComposeEnvironment(t *testing.T) {
	t.Parallel()
	got := composeEnvironment(
		map[string]string{"CKAN_VERSION": "2.10", "CKAN_HOME": "/usr/lib/ckan"},
		[]string{"CKAN_VERSION=2.11", "UID=1000", "EMPTY=", "=ignored", "NOEQUALS"},
	)
	want := map[string]string{
		"CKAN_VERSION": "2.11",
		"CKAN_HOME":    "/usr/lib/ckan",
		"UID":          "1000",
		"EMPTY":        "",
	}
	if !maps.Equal(map[string]string(got), want) {
		t.Errorf("composeEnvironment() = %v, want %v", got, want)
	}
}

func TestLoad_InterpolatesProcessEnvironment(t *testing.T) {
	t.Setenv("STACKCTL_TEST_SOLR_UID", "8983")
	prod := productionCompose + `  solr:
    image: solr:8
    user: "${STACKCTL_TEST_SOLR_UID:?required}"
`
	cfg := newStack(t, prod, developmentOverlay)
	set, err := NewSet(cfg, "")
	if err != nil {
		t.Fatal(err)
	}

	project, err := Load(context.Background(), set.Production, testutil.NewEnvironment(t, nil))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if user := project.Services["solr"].User; user != "8983" {
		t.Errorf("solr user = %q, want the process value", user)
	}
}

func TestValidate_AdditiveOverlay(t *testing.T) {
	t.Parallel()
	cfg := newStack(t, productionCompose, developmentOverlay)
	set, err := NewSet(cfg, "")
	if err != nil {
		t.Fatal(err)
	}

	report, err := Validate(context.Background(), set, testutil.NewEnvironment(t, nil))
	if err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if !slices.Equal(report.Services, []string{"ckan", "db"}) {
		t.Errorf("Services = %v", report.Services)
	}
	if !slices.Equal(report.OverlayMounts, []string{"ckan:/srv/app/src"}) {
		t.Errorf("OverlayMounts = %v", report.OverlayMounts)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prod    string
		overlay string
		mutate  func(*config.Config)
	}{
		{
			name:    "overlay replaces image",
			prod:    productionCompose,
			overlay: "services:\n  db:\n    image: postgres:16\n",
		},
		{
			name:    "overlay adds a service",
			prod:    productionCompose,
			overlay: "services:\n  mailhog:\n    image: mailhog/mailhog\n",
		},
		{
			name:    "overlay replaces a mount",
			prod:    productionCompose,
			overlay: "services:\n  db:\n    volumes:\n      - ./elsewhere:/var/lib/postgresql/data\n",
		},
		{
			name:    "overlay changes the build",
			prod:    "services:\n  ckan:\n    build: .\n",
			overlay: "services:\n  ckan:\n    build: ./dev\n",
		},
		{
			name:    "app service missing",
			prod:    productionCompose,
			overlay: developmentOverlay,
			mutate:  func(c *config.Config) { c.AppService = "web" },
		},
		{
			name:    "invalid yaml",
			prod:    "services: [",
			overlay: developmentOverlay,
		},
		{
			name:    "empty overlay",
			prod:    productionCompose,
			overlay: "",
		},
		{
			name:    "missing compose file",
			prod:    productionCompose,
			overlay: developmentOverlay,
			mutate: func(c *config.Config) {
				c.Topologies.Development.OverlayFiles = []string{"docker-compose.override.yml"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := newStack(t, tt.prod, tt.overlay)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			set, err := NewSet(cfg, "")
			if err != nil {
				t.Fatal(err)
			}
			_, err = Validate(context.Background(), set, testutil.NewEnvironment(t, nil))
			if !errors.Is(err, ErrInvalidTopology) {
				t.Fatalf("expected ErrInvalidTopology, got %v", err)
			}
		})
	}
}

func TestRunner_Verbs(t *testing.T) {
	t.Parallel()
	cfg := newStack(t, productionCompose, developmentOverlay)
	set, err := NewSet(cfg, "/stack/.env")
	if err != nil {
		t.Fatal(err)
	}

	engine := testutil.NewFakeEngine()
	runner := NewRunner(engine, set.Development)
	ctx := context.Background()

	for _, verb := range []func(context.Context) error{runner.Up, runner.Down, runner.DownVolumes} {
		if err := verb(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := runner.Recreate(ctx, ""); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"compose up -d",
		"compose down",
		"compose down -v",
		"compose up -d --no-deps --force-recreate ckan",
	}
	if got := engine.CallLog(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	opts := engine.Composes[0]
	if opts.Project != "ckan" || opts.EnvFile != "/stack/.env" || !slices.Equal(opts.Files, set.Development.Files) {
		t.Errorf("unexpected compose options %+v", opts)
	}
}

func TestRunner_PropagatesFailure(t *testing.T) {
	t.Parallel()
	engine := testutil.NewFakeEngine()
	cause := errors.New("network ckan_default not found")
	engine.FailCompose["down"] = cause

	runner := NewRunner(engine, &Topology{Kind: Production, Project: "ckan", Files: []string{"docker-compose.yml"}})
	if err := runner.Down(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected compose failure, got %v", err)
	}
}
