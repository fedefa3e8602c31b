// SPDX-License-Identifier: MPL-2.0

package lock

import (
	"path/filepath"
	"testing"
)

func TestPathFor(t *testing.T) {
	t.Parallel()

	a := PathFor("/srv/stack-a/volumes")
	b := PathFor("/srv/stack-b/volumes")
	if a == b {
		t.Errorf("different roots must not share a lock: %s", a)
	}
	if a != "/srv/stack-a/.volumes.stackctl.lock" {
		t.Errorf("PathFor() = %s", a)
	}
	if again := PathFor("/srv/stack-a/volumes/"); again != a {
		t.Errorf("equivalent roots must share a lock: %s vs %s", again, a)
	}
}

func TestPathFor_IgnoresEnvironment(t *testing.T) {
	root := filepath.Join(t.TempDir(), "volumes")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	withRuntimeDir := PathFor(root)
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("TMPDIR", t.TempDir())

	if got := PathFor(root); got != withRuntimeDir {
		t.Errorf("lock path moved with the environment: %s vs %s", got, withRuntimeDir)
	}
	if filepath.Dir(withRuntimeDir) != filepath.Dir(root) {
		t.Errorf("expected lock next to the volume root, got %s", withRuntimeDir)
	}
}

func TestPathFor_RelativeRoot(t *testing.T) {
	t.Parallel()
	if got := PathFor("volumes"); !filepath.IsAbs(got) {
		t.Errorf("expected an absolute lock path, got %s", got)
	}
}
