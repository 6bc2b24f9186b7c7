// Package simerr defines the error kinds shared by the labeling and expansion
// units. Call sites wrap them with context; callers match with errors.Is.
package simerr

import "errors"

var (
	// ErrInvalidParameter reports an out-of-range or missing scalar or list parameter.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidInput reports an array of the wrong rank or shape, or voxel
	// coordinates that fall outside the volume.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidIdentifier reports use of the reserved background id 0 as a cell id.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrEmptyState reports a query issued before anything was accumulated.
	ErrEmptyState = errors.New("empty state")
)
