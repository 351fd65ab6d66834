package tank

import "errors"

var (
	// ErrNotFound is returned when no row matches the requested hwid.
	ErrNotFound = errors.New("tank: not found")

	// ErrHWIDRequired is returned when an operation is called without a hwid.
	ErrHWIDRequired = errors.New("tank: hwid is required")
)
