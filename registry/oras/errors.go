package oras

import "errors"

// Sentinel errors for registry operations.
var (
	ErrNotFound          = errors.New("oras: not found")
	ErrUnauthorized      = errors.New("oras: unauthorized")
	ErrForbidden         = errors.New("oras: forbidden")
	ErrInvalidReference  = errors.New("oras: invalid reference")
	ErrInvalidDescriptor = errors.New("oras: invalid descriptor")
	ErrManifestInvalid   = errors.New("oras: invalid manifest")
)
