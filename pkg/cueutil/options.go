// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize bounds the size of CUE input accepted by ParseAndDecode.
const DefaultMaxFileSize int64 = 1 << 20

type (
	// Option configures ParseAndDecode and ValidateValue.
	Option func(*options)

	options struct {
		filename    string
		maxFileSize int64
		concrete    bool
	}
)

func defaultOptions() options {
	return options{
		maxFileSize: DefaultMaxFileSize,
		concrete:    true,
	}
}

// WithFilename sets the name used in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(o *options) { o.maxFileSize = size }
}

// WithConcrete controls whether validation requires every field to be concrete.
// Schemas whose fields carry defaults for optional values use WithConcrete(false).
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}
