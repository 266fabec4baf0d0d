package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Fetch resolves ref and returns its archive manifest without reading
// archive data. Manifests are cached by digest; tags are resolved on
// every call.
func (c *Client) Fetch(ctx context.Context, ref string) (*Manifest, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return nil, err
	}
	if parsed.Reference == "" {
		return nil, fmt.Errorf("%w: reference must include a tag or digest", ErrInvalidReference)
	}

	dgst, err := c.resolveDigest(ctx, ref, parsed.Reference)
	if err != nil {
		return nil, err
	}

	if c.manifests != nil {
		if raw, ok := c.manifests.Get(dgst.String()); ok {
			c.log().Debug("manifest cache hit", "digest", shortDigest(dgst.String()))
			return decodeManifest(raw, dgst)
		}
	}

	desc := ocispec.Descriptor{MediaType: ocispec.MediaTypeImageManifest, Digest: dgst}
	manifest, raw, err := c.oci.FetchManifest(ctx, ref, &desc)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", mapOCIError(err))
	}
	m, err := parseManifest(&manifest, dgst.String())
	if err != nil {
		return nil, err
	}
	if c.manifests != nil {
		c.manifests.Add(dgst.String(), raw)
	}
	return m, nil
}

func (c *Client) resolveDigest(ctx context.Context, ref, reference string) (digest.Digest, error) {
	if isDigest(reference) {
		d, err := digest.Parse(reference)
		if err != nil {
			return "", fmt.Errorf("%w: invalid digest %q", ErrInvalidReference, reference)
		}
		return d, nil
	}

	c.log().Debug("resolving tag", "ref", ref)
	desc, err := c.oci.Resolve(ctx, ref, reference)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, mapOCIError(err))
	}
	return desc.Digest, nil
}

func decodeManifest(raw []byte, dgst digest.Digest) (*Manifest, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return parseManifest(&manifest, dgst.String())
}
