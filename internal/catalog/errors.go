package catalog

import "errors"

var (
	// ErrMissingInput marks an absent products directory or node reference file.
	// Loaders never return it to callers: an absent input yields an empty value.
	ErrMissingInput = errors.New("catalog: missing input")

	// ErrMalformedInput marks a record that cannot be parsed or fails the product schema.
	// It is fatal for the whole build.
	ErrMalformedInput = errors.New("catalog: malformed input")
)
