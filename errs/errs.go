// Package errs contains sentinel errors shared across the pipeline layers.
package errs

import "errors"

var (
	// ErrNotFound indicates a missing or soft-deleted catalog entity or asset.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a caller error: bad id, unsupported image
	// format, image too small or too large, or a path outside the asset root.
	ErrInvalidInput = errors.New("invalid input")
)
