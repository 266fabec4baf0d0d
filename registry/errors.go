package registry

import (
	"errors"
	"fmt"

	"github.com/sealpack/sealpack/registry/oras"
)

// Sentinel errors for registry operations.
var (
	// ErrNotFound is returned when no archive exists at the reference.
	ErrNotFound = errors.New("registry: not found")

	// ErrInvalidReference is returned when a reference string is malformed.
	ErrInvalidReference = errors.New("registry: invalid reference")

	// ErrInvalidManifest is returned when a manifest does not describe a
	// sealpack archive.
	ErrInvalidManifest = errors.New("registry: invalid archive manifest")

	// ErrDigestMismatch is returned when downloaded content does not match
	// its descriptor.
	ErrDigestMismatch = errors.New("registry: digest mismatch")
)

// mapOCIError translates transport errors to this package's sentinels.
func mapOCIError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidReference):
		return err
	case errors.Is(err, oras.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, oras.ErrInvalidReference):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	case errors.Is(err, oras.ErrManifestInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return err
}
