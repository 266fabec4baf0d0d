package registry

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sealpack/sealpack/registry/oras"
)

// DefaultManifestCacheSize is the number of manifests kept in memory by
// digest.
const DefaultManifestCacheSize = 64

// OCIClient is the registry transport used by Client.
type OCIClient interface {
	// PushBlob uploads exactly desc.Size bytes from r.
	PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error

	// FetchBlob opens a blob. The caller closes the reader.
	FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error)

	// PushManifest uploads a manifest and points tag at it.
	PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error)

	// FetchManifest fetches a manifest by digest with its raw bytes.
	FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error)

	// Resolve resolves a tag or digest to a descriptor.
	Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error)

	// Tag points tag at desc.
	Tag(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error

	// BlobURL returns the URL for direct range reads of a blob.
	BlobURL(repoRef, digest string) (string, error)

	// HTTPClient returns a client authorized to read blobs of repoRef.
	HTTPClient(repoRef string) (*http.Client, error)
}

var _ OCIClient = (*oras.Client)(nil)

// Client pushes and pulls sealpack archives. It is safe for concurrent
// use.
type Client struct {
	oci       OCIClient
	logger    *slog.Logger
	cacheSize int
	manifests *lru.Cache[string, []byte]

	orasOpts []oras.Option
}

// Option configures a Client.
type Option func(*Client)

// WithOCIClient replaces the default ORAS transport.
func WithOCIClient(oci OCIClient) Option {
	return func(c *Client) {
		c.oci = oci
	}
}

// WithPlainHTTP talks to registries over plain HTTP.
func WithPlainHTTP(enabled bool) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithPlainHTTP(enabled))
	}
}

// WithStaticCredentials authenticates to registry with a username and
// password.
func WithStaticCredentials(registry, username, password string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithStaticCredentials(registry, username, password))
	}
}

// WithDockerConfig reads credentials from the Docker config file.
func WithDockerConfig() Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithDockerConfig())
	}
}

// WithManifestCacheSize sets how many manifests are cached by digest.
// Zero or a negative value disables the cache.
func WithManifestCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

// WithLogger sets the logger for registry operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client. Without WithOCIClient an ORAS transport is built
// from the pass-through options.
func New(opts ...Option) *Client {
	c := &Client{cacheSize: DefaultManifestCacheSize}
	for _, opt := range opts {
		opt(c)
	}

	if c.oci == nil {
		orasOpts := c.orasOpts
		if c.logger != nil {
			orasOpts = append(orasOpts, oras.WithLogger(c.logger))
		}
		c.oci = oras.New(orasOpts...)
	}
	if c.cacheSize > 0 {
		if cache, err := lru.New[string, []byte](c.cacheSize); err == nil {
			c.manifests = cache
		}
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func shortDigest(d string) string {
	return d[:min(19, len(d))]
}
