package registry

import (
	"bytes"
	"context"
	_ "crypto/sha256" // registers the digest.Canonical hash
	"fmt"
	"io"
	"maps"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sealpack/sealpack/archive"
)

// PushOption configures Push.
type PushOption func(*pushConfig)

type pushConfig struct {
	tags        []string
	annotations map[string]string
	title       string
}

// WithTags applies additional tags after the push succeeds.
func WithTags(tags ...string) PushOption {
	return func(cfg *pushConfig) {
		cfg.tags = append(cfg.tags, tags...)
	}
}

// WithAnnotations sets manifest annotations. The created and entry
// count annotations are set automatically unless given here.
func WithAnnotations(annotations map[string]string) PushOption {
	return func(cfg *pushConfig) {
		if cfg.annotations == nil {
			cfg.annotations = make(map[string]string, len(annotations))
		}
		maps.Copy(cfg.annotations, annotations)
	}
}

// WithTitle sets the title annotation of the archive layer, usually the
// archive file name.
func WithTitle(title string) PushOption {
	return func(cfg *pushConfig) {
		cfg.title = title
	}
}

// Push uploads the archive behind r as a single-layer artifact. The ref
// must carry a tag, for example "ghcr.io/acme/assets:v1".
func (c *Client) Push(ctx context.Context, ref string, r *archive.Reader, opts ...PushOption) (*Manifest, error) {
	cfg := pushConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	parsed, err := parseReference(ref)
	if err != nil {
		return nil, err
	}
	tag := parsed.Reference
	if tag == "" || isDigest(tag) {
		return nil, fmt.Errorf("%w: reference must include a tag", ErrInvalidReference)
	}

	src := r.Source()
	size := src.Size()
	dgst, err := digestSource(src, size)
	if err != nil {
		return nil, fmt.Errorf("digest archive: %w", err)
	}

	configDesc, err := c.pushEmptyConfig(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("push config: %w", err)
	}

	layer := ocispec.Descriptor{
		MediaType: MediaTypeArchive,
		Digest:    dgst,
		Size:      size,
	}
	if cfg.title != "" {
		layer.Annotations = map[string]string{ocispec.AnnotationTitle: cfg.title}
	}
	c.log().Debug("pushing archive", "ref", ref, "digest", shortDigest(dgst.String()), "size", size, "entries", r.Len())
	if err := c.oci.PushBlob(ctx, ref, &layer, io.NewSectionReader(src, 0, size)); err != nil {
		return nil, fmt.Errorf("push archive blob: %w", mapOCIError(err))
	}

	manifest := buildManifest(&configDesc, &layer, r.Len(), cfg.annotations)
	desc, err := c.oci.PushManifest(ctx, ref, tag, &manifest)
	if err != nil {
		return nil, fmt.Errorf("push manifest: %w", mapOCIError(err))
	}

	for _, extra := range cfg.tags {
		if err := c.oci.Tag(ctx, ref, &desc, extra); err != nil {
			return nil, fmt.Errorf("tag %q: %w", extra, mapOCIError(err))
		}
	}

	return parseManifest(&manifest, desc.Digest.String())
}

// Tag points additional tags at the manifest ref resolves to.
func (c *Client) Tag(ctx context.Context, ref string, tags ...string) error {
	parsed, err := parseReference(ref)
	if err != nil {
		return err
	}
	if parsed.Reference == "" {
		return fmt.Errorf("%w: reference must include a tag or digest", ErrInvalidReference)
	}
	desc, err := c.oci.Resolve(ctx, ref, parsed.Reference)
	if err != nil {
		return mapOCIError(err)
	}
	for _, tag := range tags {
		if err := c.oci.Tag(ctx, ref, &desc, tag); err != nil {
			return fmt.Errorf("tag %q: %w", tag, mapOCIError(err))
		}
	}
	return nil
}

func (c *Client) pushEmptyConfig(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	config := []byte("{}")
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeEmptyJSON,
		Digest:    digest.FromBytes(config),
		Size:      int64(len(config)),
	}
	if err := c.oci.PushBlob(ctx, ref, &desc, bytes.NewReader(config)); err != nil {
		return ocispec.Descriptor{}, mapOCIError(err)
	}
	return desc, nil
}

func digestSource(src archive.ByteSource, size int64) (digest.Digest, error) {
	d := digest.Canonical.Digester()
	if _, err := io.Copy(d.Hash(), io.NewSectionReader(src, 0, size)); err != nil {
		return "", err
	}
	return d.Digest(), nil
}

func buildManifest(config, layer *ocispec.Descriptor, entries int, custom map[string]string) ocispec.Manifest {
	annotations := map[string]string{
		ocispec.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
		AnnotationEntries:         strconv.Itoa(entries),
	}
	maps.Copy(annotations, custom)

	return ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       *config,
		Layers:       []ocispec.Descriptor{*layer},
		Annotations:  annotations,
	}
}
