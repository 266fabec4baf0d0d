package registry

import (
	"fmt"
	"strings"

	orasregistry "oras.land/oras-go/v2/registry"
)

func parseReference(ref string) (orasregistry.Reference, error) {
	r, err := orasregistry.ParseReference(ref)
	if err != nil {
		return orasregistry.Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return r, nil
}

// isDigest reports whether a tag-or-digest reference is a digest.
func isDigest(reference string) bool {
	return strings.Contains(reference, ":")
}
