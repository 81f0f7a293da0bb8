package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleState is returned when a conditional transition matched no
	// rows because the entity is no longer in the expected state.
	ErrStaleState = errors.New("entity not in expected state")
)
