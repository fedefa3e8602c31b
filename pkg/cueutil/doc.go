// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing utilities.
//
// It consolidates the 3-step CUE flow used by the stack configuration and the
// environment schema:
//
//  1. Compile the embedded schema
//  2. Compile (or encode) user data and unify it with the schema
//  3. Validate and decode
//
// # Usage
//
//	//go:embed stack_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[Stack](
//	    schemaBytes,
//	    userFileBytes,
//	    "#Stack",
//	    cueutil.WithFilename("stack.cue"),
//	)
//
// ValidateValue runs the same checks against an in-memory Go value, which is how
// env files (flat key-value data, not CUE) are checked against a schema.
package cueutil
