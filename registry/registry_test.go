package registry

import (
	"bytes"
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/archive"
	"github.com/sealpack/sealpack/cache"
	"github.com/sealpack/sealpack/internal/testutil"
)

const testRepo = "registry.test/acme/assets"

func sampleArchive(t *testing.T) ([]byte, *archive.Reader) {
	t.Helper()

	files := []archive.File{
		{Path: "config/app.yaml", Data: []byte("name: sealpack\nworkers: 4\n")},
		{Path: "data/words.txt", Data: testutil.Text(40 << 10)},
		{Path: "data/noise.bin", Data: testutil.Random(3000, 7)},
	}
	var buf bytes.Buffer
	_, err := archive.Pack(context.Background(), &buf, files)
	require.NoError(t, err)

	r, err := archive.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return buf.Bytes(), r
}

func TestPushPull(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	c := New(WithOCIClient(fake))
	ctx := context.Background()
	data, r := sampleArchive(t)

	m, err := c.Push(ctx, testRepo+":v1", r,
		WithTags("latest"),
		WithTitle("assets.sealpak"),
		WithAnnotations(map[string]string{"org.example.team": "infra"}))
	require.NoError(t, err)
	assert.Equal(t, digest.FromBytes(data), m.ArchiveDescriptor().Digest)
	assert.Equal(t, int64(len(data)), m.Size())
	assert.Equal(t, 3, m.Entries())
	assert.False(t, m.Created().IsZero())
	assert.Equal(t, "infra", m.Annotations()["org.example.team"])
	assert.Equal(t, "assets.sealpak", m.ArchiveDescriptor().Annotations[ocispec.AnnotationTitle])

	for _, ref := range []string{testRepo + ":v1", testRepo + ":latest", testRepo + "@" + m.Digest()} {
		t.Run(ref, func(t *testing.T) {
			remote, err := c.Pull(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, r.Entries(), remote.Entries())

			got, err := remote.ReadFile("config/app.yaml")
			require.NoError(t, err)
			assert.Equal(t, "name: sealpack\nworkers: 4\n", string(got))

			report, err := remote.Fsck(ctx)
			require.NoError(t, err)
			assert.True(t, report.OK())
		})
	}
}

func TestPushRequiresTag(t *testing.T) {
	t.Parallel()

	c := New(WithOCIClient(newFakeOCI(t)))
	_, r := sampleArchive(t)

	for _, ref := range []string{
		testRepo,
		testRepo + "@" + digest.FromString("x").String(),
		"not a reference",
	} {
		_, err := c.Push(context.Background(), ref, r)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
	}
}

func TestFetchCachesManifests(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, r := sampleArchive(t)

	tests := []struct {
		name    string
		opts    []Option
		fetches int
	}{
		{"cached", nil, 1},
		{"uncached", []Option{WithManifestCacheSize(0)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFakeOCI(t)
			c := New(append([]Option{WithOCIClient(fake)}, tt.opts...)...)
			_, err := c.Push(ctx, testRepo+":v1", r)
			require.NoError(t, err)

			for range 3 {
				m, err := c.Fetch(ctx, testRepo+":v1")
				require.NoError(t, err)
				assert.Equal(t, 3, m.Entries())
			}
			assert.Equal(t, tt.fetches, fake.fetches())
		})
	}
}

func TestFetchNotFound(t *testing.T) {
	t.Parallel()

	c := New(WithOCIClient(newFakeOCI(t)))
	_, err := c.Fetch(context.Background(), testRepo+":missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Pull(context.Background(), testRepo+"@"+digest.FromString("gone").String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchRejectsForeignArtifact(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	fake.putManifest(testRepo, "image", &ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: "application/vnd.example.other",
	})

	c := New(WithOCIClient(fake))
	_, err := c.Fetch(context.Background(), testRepo+":image")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	layer := ocispec.Descriptor{MediaType: MediaTypeArchive, Digest: digest.FromString("a"), Size: 1}
	valid := func() ocispec.Manifest {
		return ocispec.Manifest{
			MediaType:    ocispec.MediaTypeImageManifest,
			ArtifactType: ArtifactType,
			Layers:       []ocispec.Descriptor{layer},
			Annotations: map[string]string{
				ocispec.AnnotationCreated: "2026-01-02T03:04:05Z",
				AnnotationEntries:         "12",
			},
		}
	}

	m := valid()
	parsed, err := parseManifest(&m, "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, 12, parsed.Entries())
	assert.Equal(t, 2026, parsed.Created().Year())
	assert.Equal(t, "sha256:abc", parsed.Digest())

	m = valid()
	m.Annotations = nil
	parsed, err = parseManifest(&m, "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, -1, parsed.Entries())
	assert.True(t, parsed.Created().IsZero())

	tests := []struct {
		name   string
		mutate func(*ocispec.Manifest)
	}{
		{"media type", func(m *ocispec.Manifest) { m.MediaType = ocispec.MediaTypeImageIndex }},
		{"artifact type", func(m *ocispec.Manifest) { m.ArtifactType = "" }},
		{"no layers", func(m *ocispec.Manifest) { m.Layers = nil }},
		{"two layers", func(m *ocispec.Manifest) { m.Layers = append(m.Layers, layer) }},
		{"layer media type", func(m *ocispec.Manifest) { m.Layers[0].MediaType = "application/octet-stream" }},
		{"layer digest", func(m *ocispec.Manifest) { m.Layers[0].Digest = "sha256:zz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid()
			m.Layers = []ocispec.Descriptor{layer}
			tt.mutate(&m)
			_, err := parseManifest(&m, "sha256:abc")
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	c := New(WithOCIClient(fake))
	ctx := context.Background()
	data, r := sampleArchive(t)

	m, err := c.Push(ctx, testRepo+":v1", r)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = c.Download(ctx, testRepo+":v1", &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())

	fake.corruptBlob(m.ArchiveDescriptor().Digest, func(b []byte) []byte {
		b[len(b)-1] ^= 0xff
		return b
	})
	buf.Reset()
	_, err = c.Download(ctx, testRepo+":v1", &buf)
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestPullDetectsTampering(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	c := New(WithOCIClient(fake))
	ctx := context.Background()
	_, r := sampleArchive(t)

	m, err := c.Push(ctx, testRepo+":v1", r)
	require.NoError(t, err)
	d := m.ArchiveDescriptor().Digest

	t.Run("size", func(t *testing.T) {
		fake.corruptBlob(d, func(b []byte) []byte { return append(b, 0) })
		_, err := c.Pull(ctx, testRepo+":v1")
		assert.ErrorIs(t, err, ErrDigestMismatch)
		fake.corruptBlob(d, func(b []byte) []byte { return b[:len(b)-1] })
	})

	t.Run("content", func(t *testing.T) {
		fake.corruptBlob(d, func(b []byte) []byte {
			b[len(b)-1] ^= 0xff
			return b
		})
		remote, err := c.Pull(ctx, testRepo+":v1")
		require.NoError(t, err)

		report, err := remote.Fsck(ctx)
		require.NoError(t, err)
		require.Len(t, report.Failures(), 1)
		assert.ErrorIs(t, report.Failures()[0].Err, sealpack.ErrIntegrity)
	})
}

func TestTag(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	c := New(WithOCIClient(fake))
	ctx := context.Background()
	_, r := sampleArchive(t)

	m, err := c.Push(ctx, testRepo+":v1", r)
	require.NoError(t, err)

	require.NoError(t, c.Tag(ctx, testRepo+":v1", "stable", "prod"))
	for _, tag := range []string{"stable", "prod"} {
		got, err := c.Fetch(ctx, testRepo+":"+tag)
		require.NoError(t, err)
		assert.Equal(t, m.Digest(), got.Digest())
	}

	assert.ErrorIs(t, c.Tag(ctx, testRepo+":missing", "x"), ErrNotFound)
}

func TestPullThroughBlockCache(t *testing.T) {
	t.Parallel()

	fake := newFakeOCI(t)
	c := New(WithOCIClient(fake))
	ctx := context.Background()
	_, r := sampleArchive(t)

	m, err := c.Push(ctx, testRepo+":v1", r)
	require.NoError(t, err)

	bc, err := cache.New(t.TempDir())
	require.NoError(t, err)

	for range 2 {
		remote, err := c.Pull(ctx, testRepo+":v1", WithBlockCache(bc))
		require.NoError(t, err)
		got, err := remote.ReadFile("config/app.yaml")
		require.NoError(t, err)
		assert.Equal(t, "name: sealpack\nworkers: 4\n", string(got))
	}
	assert.Positive(t, bc.SizeBytes())

	// Cached blocks survive the registry losing the archive contents.
	fake.corruptBlob(m.ArchiveDescriptor().Digest, func(b []byte) []byte {
		return make([]byte, len(b))
	})
	remote, err := c.Pull(ctx, testRepo+":v1", WithBlockCache(bc))
	require.NoError(t, err)
	_, err = remote.ReadFile("config/app.yaml")
	assert.NoError(t, err)
}
