package store

import "errors"

// Sentinel errors returned by Store implementations; callers translate
// these into *errs.Error at the service layer, where the right Kind
// (CONFLICT, NOT_FOUND, ...) is context-dependent.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidState  = errors.New("store: invalid state transition")
	ErrChainConflict = errors.New("store: chain head changed concurrently")
)
