package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid delivery transition")
	ErrCorrupt           = errors.New("corrupt data")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrUniqueViolation is raised by the storage layer when a unique index rejects a write.
	ErrUniqueViolation = errors.New("unique constraint violation")
)
