// SPDX-License-Identifier: MPL-2.0

// Package envset resolves the environment set: the key-value parameters (version
// pin, home, storage and config paths) every build and runtime step consumes.
//
// The set is read from exactly one dotenv file. There is no merging with the
// process environment and no defaults; a key that is absent or blank is missing,
// and resolution fails before any side effect when a required key is missing.
package envset

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"stackctl/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// KeyVersion pins the application version and the image tag.
	KeyVersion = "CKAN_VERSION"
	// KeyHome is the application home path inside the container.
	KeyHome = "CKAN_HOME"
	// KeyStoragePath is the file storage path inside the container.
	KeyStoragePath = "CKAN_STORAGE_PATH"
	// KeyConfig is the configuration path inside the container.
	KeyConfig = "CKAN_CONFIG"
)

//go:embed env_schema.cue
var envSchema []byte

// RequiredKeys lists the keys that must be present and non-blank.
var RequiredKeys = []string{KeyVersion, KeyHome, KeyStoragePath, KeyConfig}

// Environment is an immutable, validated environment set.
type Environment struct {
	path   string
	values map[string]string
}

// Resolve reads the dotenv file at path and validates it. Missing keys are
// reported together as a *MissingConfigError; malformed values as an
// *InvalidEnvironmentError.
func Resolve(ctx context.Context, path string) (*Environment, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve environment canceled: %w", ctx.Err())
	default:
	}

	if _, err := os.Stat(path); err != nil {
		return nil, &MissingConfigError{Path: path, Keys: slices.Clone(RequiredKeys), Err: err}
	}

	// The default "." delimiter would turn dotted keys into nested maps.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, &MissingConfigError{Path: path, Keys: slices.Clone(RequiredKeys), Err: err}
	}

	// Viper folds keys to lower case; the environment set is upper case.
	values := make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		values[strings.ToUpper(key)] = v.GetString(key)
	}

	return New(path, values)
}

// New validates values as an environment set read from path. It is the
// constructor Resolve uses once the file is parsed.
func New(path string, values map[string]string) (*Environment, error) {
	var missing []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingConfigError{Path: path, Keys: missing}
	}

	if err := cueutil.ValidateValue(envSchema, values, "#Environment", cueutil.WithFilename(path)); err != nil {
		return nil, &InvalidEnvironmentError{Path: path, Err: err}
	}

	return &Environment{path: path, values: maps.Clone(values)}, nil
}

// Path returns the file the set was read from.
func (e *Environment) Path() string { return e.path }

// Version returns the version pin.
func (e *Environment) Version() string { return e.values[KeyVersion] }

// Home returns the application home path.
func (e *Environment) Home() string { return e.values[KeyHome] }

// StoragePath returns the storage path.
func (e *Environment) StoragePath() string { return e.values[KeyStoragePath] }

// ConfigPath returns the configuration path.
func (e *Environment) ConfigPath() string { return e.values[KeyConfig] }

// Lookup returns the value of key and whether it is set.
func (e *Environment) Lookup(key string) (string, bool) {
	value, ok := e.values[key]
	return value, ok
}

// Keys returns every key in sorted order.
func (e *Environment) Keys() []string {
	return slices.Sorted(maps.Keys(e.values))
}

// BuildArgs returns a copy of every value, suitable for --build-arg inputs
// and compose interpolation.
func (e *Environment) BuildArgs() map[string]string {
	return maps.Clone(e.values)
}
