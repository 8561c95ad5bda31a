package storage

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert or update violates a unique constraint
	ErrDuplicate = errors.New("record already exists")
)
