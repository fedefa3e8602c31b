// SPDX-License-Identifier: MPL-2.0

// Package config handles stack configuration using Viper with CUE as the file format.
//
// Configuration is loaded from the file named by --config, or from stack.cue in the
// working directory when present. Without a file the built-in defaults describe a
// CKAN stack with a base and a final image stage. Values are validated against the
// embedded CUE schema (stack_schema.cue) before they reach Viper, and relative paths
// resolve against the directory holding the configuration file.
//
// The tool configuration is distinct from the environment set (see package envset):
// it describes how the stack is laid out, never the secrets or version pins it runs with.
package config
