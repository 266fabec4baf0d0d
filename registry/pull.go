package registry

import (
	"context"
	"fmt"
	"io"

	"github.com/sealpack/sealpack/archive"
	"github.com/sealpack/sealpack/cache"
	sealhttp "github.com/sealpack/sealpack/http"
)

// PullOption configures Pull.
type PullOption func(*pullConfig)

type pullConfig struct {
	archiveOpts []archive.Option
	blockCache  *cache.BlockCache
}

// WithArchiveOptions passes options to archive.Open.
func WithArchiveOptions(opts ...archive.Option) PullOption {
	return func(cfg *pullConfig) {
		cfg.archiveOpts = append(cfg.archiveOpts, opts...)
	}
}

// WithBlockCache reads the archive through bc, keyed by the archive
// digest.
func WithBlockCache(bc *cache.BlockCache) PullOption {
	return func(cfg *pullConfig) {
		cfg.blockCache = bc
	}
}

// Pull opens the archive at ref for lazy reads. Only the manifest and
// the entry table are fetched; entry data is read by range on demand and
// verified by its footer. ctx bounds every later read.
func (c *Client) Pull(ctx context.Context, ref string, opts ...PullOption) (*archive.Reader, error) {
	cfg := pullConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := c.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	url, err := c.oci.BlobURL(ref, m.layer.Digest.String())
	if err != nil {
		return nil, mapOCIError(err)
	}
	client, err := c.oci.HTTPClient(ref)
	if err != nil {
		return nil, mapOCIError(err)
	}

	src, err := sealhttp.NewSource(ctx, url, sealhttp.WithClient(client))
	if err != nil {
		return nil, fmt.Errorf("open archive blob: %w", err)
	}
	if src.Size() != m.layer.Size {
		return nil, fmt.Errorf("%w: archive is %d bytes, manifest says %d", ErrDigestMismatch, src.Size(), m.layer.Size)
	}

	var byteSource archive.ByteSource = src
	if cfg.blockCache != nil {
		cached, err := cfg.blockCache.Wrap(src, m.layer.Digest.String())
		if err != nil {
			return nil, err
		}
		byteSource = cached
	}

	r, err := archive.Open(byteSource, cfg.archiveOpts...)
	if err != nil {
		return nil, err
	}
	if m.entries >= 0 && r.Len() != m.entries {
		return nil, fmt.Errorf("%w: archive has %d entries, manifest says %d", ErrInvalidManifest, r.Len(), m.entries)
	}
	c.log().Debug("pulled archive", "ref", ref, "digest", shortDigest(m.digest), "entries", r.Len())
	return r, nil
}

// Download copies the whole archive at ref to w and verifies its digest.
func (c *Client) Download(ctx context.Context, ref string, w io.Writer) (*Manifest, error) {
	m, err := c.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	rc, err := c.oci.FetchBlob(ctx, ref, &m.layer)
	if err != nil {
		return nil, fmt.Errorf("fetch archive blob: %w", mapOCIError(err))
	}
	defer rc.Close()

	verifier := m.layer.Digest.Verifier()
	n, err := io.Copy(io.MultiWriter(w, verifier), io.LimitReader(rc, m.layer.Size))
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	if n != m.layer.Size || !verifier.Verified() {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, m.layer.Digest)
	}
	return m, nil
}
