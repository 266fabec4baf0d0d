package oras

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// maxManifestSize bounds manifests fetched without a known size.
const maxManifestSize = 4 << 20

// Client performs OCI registry operations. It is safe for concurrent use.
type Client struct {
	plainHTTP  bool
	userAgent  string
	credStore  credentials.Store
	logger     *slog.Logger
	authClient *auth.Client
}

// New creates a Client. Without a credential store every request is
// anonymous.
func New(opts ...Option) *Client {
	c := &Client{userAgent: "sealpack/1.0"}
	for _, opt := range opts {
		opt(c)
	}

	c.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if c.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return c.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{c.userAgent},
		},
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Client) repository(ref string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = c.plainHTTP
	repo.Client = c.authClient
	return repo, nil
}

func parseRef(ref string) (registry.Reference, error) {
	r, err := registry.ParseReference(ref)
	if err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return r, nil
}

// PushBlob uploads exactly desc.Size bytes from r.
func (c *Client) PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: content reader is nil", ErrInvalidDescriptor)
	}
	repo, err := c.repository(repoRef)
	if err != nil {
		return err
	}

	c.log().Debug("pushing blob", "ref", repoRef, "digest", desc.Digest, "size", desc.Size)
	if err := repo.Push(ctx, *desc, r); err != nil {
		if errors.Is(err, errdef.ErrAlreadyExists) {
			return nil
		}
		return mapError(err)
	}
	return nil
}

// FetchBlob opens the blob described by desc. The caller closes the
// returned reader.
func (c *Client) FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}
	repo, err := c.repository(repoRef)
	if err != nil {
		return nil, err
	}

	rc, err := repo.Fetch(ctx, *desc)
	if err != nil {
		return nil, mapError(err)
	}
	return rc, nil
}

// PushManifest uploads an image manifest and points tag at it.
func (c *Client) PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	if manifest == nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: manifest is nil", ErrManifestInvalid)
	}
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("marshal manifest: %w", err)
	}
	desc := ocispec.Descriptor{
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: manifest.ArtifactType,
		Digest:       digest.FromBytes(raw),
		Size:         int64(len(raw)),
	}

	c.log().Debug("pushing manifest", "ref", repoRef, "tag", tag, "digest", desc.Digest)
	if err := repo.PushReference(ctx, desc, bytes.NewReader(raw), tag); err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}
	return desc, nil
}

// FetchManifest fetches the image manifest at expected.Digest and
// returns it along with its raw bytes.
func (c *Client) FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	if err := validateDescriptor(expected); err != nil {
		return ocispec.Manifest{}, nil, err
	}
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Manifest{}, nil, err
	}

	desc, rc, err := repo.FetchReference(ctx, expected.Digest.String())
	if err != nil {
		return ocispec.Manifest{}, nil, mapError(err)
	}
	defer rc.Close()

	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: unsupported media type %s", ErrManifestInvalid, desc.MediaType)
	}

	limit := int64(maxManifestSize)
	if expected.Size > 0 {
		limit = expected.Size
	}
	raw, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("read manifest: %w", err)
	}
	if int64(len(raw)) > limit {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: manifest exceeds %d bytes", ErrManifestInvalid, limit)
	}
	if got := digest.FromBytes(raw); got != expected.Digest {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: digest %s, want %s", ErrManifestInvalid, got, expected.Digest)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	return manifest, raw, nil
}

// Resolve resolves a tag or digest to a manifest descriptor.
func (c *Client) Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc, err := repo.Resolve(ctx, ref)
	if err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}
	return desc, nil
}

// Tag points tag at desc.
func (c *Client) Tag(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}
	repo, err := c.repository(repoRef)
	if err != nil {
		return err
	}
	if err := repo.Tag(ctx, *desc, tag); err != nil {
		return mapError(err)
	}
	return nil
}

// BlobURL returns the registry URL of a blob for direct range reads.
func (c *Client) BlobURL(repoRef, dgst string) (string, error) {
	ref, err := parseRef(repoRef)
	if err != nil {
		return "", err
	}
	scheme := "https"
	if c.plainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/blobs/%s", scheme, ref.Host(), ref.Repository, dgst), nil
}

// HTTPClient returns a client whose requests carry pull credentials for
// repoRef, including any token exchange the registry requires.
func (c *Client) HTTPClient(repoRef string) (*http.Client, error) {
	ref, err := parseRef(repoRef)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &authTransport{client: c.authClient, ref: ref},
	}, nil
}

type authTransport struct {
	client *auth.Client
	ref    registry.Reference
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := auth.AppendRepositoryScope(req.Context(), t.ref, auth.ActionPull)
	return t.client.Do(req.Clone(ctx))
}

func validateDescriptor(desc *ocispec.Descriptor) error {
	if desc == nil {
		return fmt.Errorf("%w: descriptor is nil", ErrInvalidDescriptor)
	}
	if desc.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidDescriptor, desc.Size)
	}
	if desc.Digest == "" {
		return fmt.Errorf("%w: empty digest", ErrInvalidDescriptor)
	}
	if err := desc.Digest.Validate(); err != nil {
		return fmt.Errorf("%w: invalid digest %q: %v", ErrInvalidDescriptor, desc.Digest, err)
	}
	return nil
}

// mapError translates oras-go errors into this package's sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var resp *errcode.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
