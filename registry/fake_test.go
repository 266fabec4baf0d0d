package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sealpack/sealpack/registry/oras"
)

// fakeOCI is an in-memory registry. Blobs are served over HTTP so that
// Pull exercises real range requests.
type fakeOCI struct {
	mu        sync.Mutex
	blobs     map[digest.Digest][]byte
	manifests map[digest.Digest][]byte
	tags      map[string]digest.Digest

	manifestFetches int
	srv             *httptest.Server
}

func newFakeOCI(t *testing.T) *fakeOCI {
	t.Helper()

	f := &fakeOCI{
		blobs:     make(map[digest.Digest][]byte),
		manifests: make(map[digest.Digest][]byte),
		tags:      make(map[string]digest.Digest),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serveBlob))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOCI) serveBlob(w http.ResponseWriter, r *http.Request) {
	d := digest.Digest(strings.TrimPrefix(r.URL.Path, "/blobs/"))
	f.mu.Lock()
	data, ok := f.blobs[d]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("ETag", `"`+d.Encoded()+`"`)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

func repoKey(ref string) string {
	if i := strings.LastIndexAny(ref, ":@"); i > strings.LastIndex(ref, "/") {
		return ref[:i]
	}
	return ref
}

func (f *fakeOCI) PushBlob(_ context.Context, _ string, desc *ocispec.Descriptor, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != desc.Size || digest.FromBytes(data) != desc.Digest {
		return fmt.Errorf("blob does not match descriptor %s", desc.Digest)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[desc.Digest] = data
	return nil
}

func (f *fakeOCI) FetchBlob(_ context.Context, _ string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[desc.Digest]
	if !ok {
		return nil, oras.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeOCI) PushManifest(_ context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromBytes(raw),
		Size:      int64(len(raw)),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[desc.Digest] = raw
	f.tags[repoKey(repoRef)+":"+tag] = desc.Digest
	return desc, nil
}

func (f *fakeOCI) FetchManifest(_ context.Context, _ string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifestFetches++
	raw, ok := f.manifests[expected.Digest]
	if !ok {
		return ocispec.Manifest{}, nil, oras.ErrNotFound
	}
	var m ocispec.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return ocispec.Manifest{}, nil, err
	}
	return m, raw, nil
}

func (f *fakeOCI) Resolve(_ context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.tags[repoKey(repoRef)+":"+ref]
	if !ok {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %s", oras.ErrNotFound, ref)
	}
	return ocispec.Descriptor{MediaType: ocispec.MediaTypeImageManifest, Digest: d, Size: int64(len(f.manifests[d]))}, nil
}

func (f *fakeOCI) Tag(_ context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.manifests[desc.Digest]; !ok {
		return oras.ErrNotFound
	}
	f.tags[repoKey(repoRef)+":"+tag] = desc.Digest
	return nil
}

func (f *fakeOCI) BlobURL(_ string, dgst string) (string, error) {
	return f.srv.URL + "/blobs/" + dgst, nil
}

func (f *fakeOCI) HTTPClient(string) (*http.Client, error) {
	return f.srv.Client(), nil
}

// putManifest stores an arbitrary manifest under tag.
func (f *fakeOCI) putManifest(repo, tag string, m *ocispec.Manifest) digest.Digest {
	raw, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	d := digest.FromBytes(raw)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[d] = raw
	f.tags[repo+":"+tag] = d
	return d
}

// corruptBlob replaces the content stored for d.
func (f *fakeOCI) corruptBlob(d digest.Digest, mutate func([]byte) []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[d] = mutate(bytes.Clone(f.blobs[d]))
}

func (f *fakeOCI) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manifestFetches
}
