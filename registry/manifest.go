package registry

import (
	"fmt"
	"strconv"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest describes an archive stored in a registry.
type Manifest struct {
	raw     ocispec.Manifest
	digest  string
	layer   ocispec.Descriptor
	created time.Time
	entries int
}

// Digest returns the manifest digest.
func (m *Manifest) Digest() string {
	return m.digest
}

// ArchiveDescriptor returns the descriptor of the archive layer.
func (m *Manifest) ArchiveDescriptor() ocispec.Descriptor {
	return m.layer
}

// Size returns the archive size in bytes.
func (m *Manifest) Size() int64 {
	return m.layer.Size
}

// Entries returns the recorded entry count, or -1 if the manifest does
// not record one.
func (m *Manifest) Entries() int {
	return m.entries
}

// Annotations returns the manifest annotations.
func (m *Manifest) Annotations() map[string]string {
	return m.raw.Annotations
}

// Created returns the creation time, or the zero time if the annotation
// is missing or malformed.
func (m *Manifest) Created() time.Time {
	return m.created
}

// Raw returns the underlying OCI manifest.
func (m *Manifest) Raw() ocispec.Manifest {
	return m.raw
}

func parseManifest(manifest *ocispec.Manifest, digest string) (*Manifest, error) {
	if manifest.MediaType != ocispec.MediaTypeImageManifest {
		return nil, fmt.Errorf("%w: unexpected manifest media type %q", ErrInvalidManifest, manifest.MediaType)
	}
	if manifest.ArtifactType != ArtifactType {
		return nil, fmt.Errorf("%w: unexpected artifact type %q", ErrInvalidManifest, manifest.ArtifactType)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("%w: expected 1 layer, got %d", ErrInvalidManifest, len(manifest.Layers))
	}
	layer := manifest.Layers[0]
	if layer.MediaType != MediaTypeArchive {
		return nil, fmt.Errorf("%w: unexpected layer media type %q", ErrInvalidManifest, layer.MediaType)
	}
	if err := layer.Digest.Validate(); err != nil || layer.Size < 0 {
		return nil, fmt.Errorf("%w: malformed archive descriptor", ErrInvalidManifest)
	}

	m := &Manifest{
		raw:     *manifest,
		digest:  digest,
		layer:   layer,
		entries: -1,
	}
	if ts, ok := manifest.Annotations[ocispec.AnnotationCreated]; ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.created = t
		}
	}
	if v, ok := manifest.Annotations[AnnotationEntries]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			m.entries = n
		}
	}
	return m, nil
}
