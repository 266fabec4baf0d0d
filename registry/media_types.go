package registry

// Media types and annotations for archives in OCI registries.
const (
	// ArtifactType identifies sealpack archives as an OCI 1.1 artifact.
	ArtifactType = "application/vnd.sealpack.archive.v1"

	// MediaTypeArchive is the media type of the archive layer.
	MediaTypeArchive = "application/vnd.sealpack.archive.v1.sealpak"

	// AnnotationEntries records the number of archive entries.
	AnnotationEntries = "dev.sealpack.archive.entries"
)
