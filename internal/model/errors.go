package model

import "errors"

// Sentinel errors shared by the persistence layer and its callers.
var (
	ErrNotFound = errors.New("resource not found")
	// ErrStatusMismatch means a conditional status update matched no row
	// because the resource was not in one of the expected statuses.
	ErrStatusMismatch = errors.New("resource status does not allow this transition")
)
