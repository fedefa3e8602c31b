// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue/errors"
)

type (
	// SchemaError lists every schema violation found in one file.
	SchemaError struct {
		File     string
		Problems []Problem
	}

	// Problem is one violation. Path is in JSON-path notation
	// ("image.stages[0].name") and empty for document-level problems.
	Problem struct {
		Path    string
		Message string
	}
)

// Error renders one problem on a single line and several as an indented list:
//
//	stack.cue: image.stages[1].steps[0].run: incomplete value string
//	.env: validation failed:
//	  CKAN_HOME: invalid value "srv/app" (out of bound =~"^/")
//	  CKAN_VERSION: incomplete value string
func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return e.File + ": " + e.Problems[0].String()
	}
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return e.File + ": validation failed:\n  " + strings.Join(lines, "\n  ")
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// FormatError turns a CUE error into a *SchemaError for filePath. Errors that
// do not come from CUE are wrapped with the file name.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	cueErrors := errors.Errors(err)
	if len(cueErrors) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	se := &SchemaError{File: filePath}
	for _, e := range cueErrors {
		path := formatPath(errors.Path(e))
		msg := e.Error()
		// CUE sometimes repeats the path at the start of the message.
		if path != "" {
			if rest, ok := strings.CutPrefix(msg, path); ok {
				msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			}
		}
		se.Problems = append(se.Problems, Problem{Path: path, Message: msg})
	}
	return se
}

// formatPath joins a CUE error path, writing numeric elements as indices:
// ["image", "stages", "0", "name"] becomes "image.stages[0].name".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

// CheckFileSize rejects data larger than maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if size := int64(len(data)); size > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, size, maxSize)
	}
	return nil
}
