// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"stackctl/internal/envset"
)

// EnvValues returns a complete, valid set of environment values.
func EnvValues() map[string]string {
	return map[string]string{
		envset.KeyVersion:     "2.10",
		envset.KeyHome:        "/usr/lib/ckan",
		envset.KeyStoragePath: "/var/lib/ckan",
		envset.KeyConfig:      "/etc/ckan",
	}
}

// WriteEnvFile writes values as a dotenv file named .env in dir and returns its path.
func WriteEnvFile(t testing.TB, dir string, values map[string]string) string {
	t.Helper()
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(&sb, "%s=%s\n", k, values[k])
	}
	path := filepath.Join(dir, ".env")
	MustWriteFile(t, path, sb.String())
	return path
}

// NewEnvironment returns a validated environment set built from EnvValues
// with overrides applied.
func NewEnvironment(t testing.TB, overrides map[string]string) *envset.Environment {
	t.Helper()
	values := EnvValues()
	maps.Copy(values, overrides)
	env, err := envset.New("/stack/.env", values)
	if err != nil {
		t.Fatalf("failed to build environment set: %v", err)
	}
	return env
}
