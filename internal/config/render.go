// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Format selects the rendering of `config show`.
type Format string

const (
	// FormatCUE renders a stack.cue document that loads back unchanged.
	FormatCUE Format = "cue"
	// FormatTOML renders the same values as TOML.
	FormatTOML Format = "toml"
)

// Render renders cfg in the requested format.
func Render(cfg *Config, format Format) (string, error) {
	switch format {
	case FormatCUE, "":
		return GenerateCUE(cfg), nil
	case FormatTOML:
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to render configuration as TOML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown format %q (expected %q or %q)", format, FormatCUE, FormatTOML)
	}
}
