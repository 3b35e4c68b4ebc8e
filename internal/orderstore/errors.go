package orderstore

import "errors"

var (
	// ErrNotFound is returned when an order or crew does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a mutation violates the workflow rules.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned for malformed input.
	ErrInvalid = errors.New("invalid request")
	// ErrSchemaMismatch indicates the database was written by a newer schema.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
