package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/internal/pathutil"
	"github.com/sealpack/sealpack/internal/sizing"
)

// ByteSource provides random access to an archive.
//
// *os.File does not implement Size; use OpenFile for files on disk.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Reader provides random access to the entries of an archive.
//
// A Reader is safe for concurrent use. Concurrent reads of the same
// entry are deduplicated.
type Reader struct {
	src       ByteSource
	entries   []Entry
	byPath    map[string]int
	dataStart int64
	cfg       *config

	fetchGroup singleflight.Group
	cache      *lru.Cache[string, []byte]
}

// Open reads the header and entry table of the archive in src.
//
// Open fails with ErrInvalidArchive if the magic is wrong, the table is
// truncated, or an entry extends beyond the data region. Entry data is
// not read until requested.
func Open(src ByteSource, opts ...Option) (*Reader, error) {
	cfg := newConfig(opts)
	entries, dataStart, err := readTable(src)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:       src,
		entries:   entries,
		byPath:    make(map[string]int, len(entries)),
		dataStart: dataStart,
		cfg:       cfg,
	}
	for i, e := range entries {
		if _, ok := r.byPath[e.Path]; !ok {
			r.byPath[e.Path] = i
		}
	}
	if cfg.cacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("archive: create cache: %w", err)
		}
		r.cache = cache
	}

	cfg.log().Debug("opened archive", "entries", len(entries), "data_start", dataStart)
	return r, nil
}

// List returns the entry table of the archive in src.
func List(src ByteSource) ([]Entry, error) {
	entries, _, err := readTable(src)
	return entries, err
}

// Entries returns a copy of the entry table in archive order.
func (r *Reader) Entries() []Entry {
	return slices.Clone(r.entries)
}

// EntriesUnder returns the entries at or below dir, in archive order.
func (r *Reader) EntriesUnder(dir string) []Entry {
	dir = pathutil.Normalize(dir)
	var out []Entry
	for _, e := range r.entries {
		if pathutil.Under(e.Path, dir) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Reader) Len() int {
	return len(r.entries)
}

// Source returns the ByteSource the archive was opened from.
func (r *Reader) Source() ByteSource {
	return r.src
}

// Lookup returns the first entry stored under path.
func (r *Reader) Lookup(path string) (Entry, bool) {
	i, ok := r.byPath[pathutil.Normalize(path)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// ReadFile decodes and returns the content stored under path.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	e, ok := r.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return r.Extract(e)
}

// Extract reads exactly the entry's bytes and decodes them. The stream's
// footer is verified before decoding.
func (r *Reader) Extract(e Entry) ([]byte, error) {
	key := entryKey(e)
	if content, ok := r.cachedContent(key); ok {
		return slices.Clone(content), nil
	}

	result, err, _ := r.fetchGroup.Do(key, func() (any, error) {
		if content, ok := r.cachedContent(key); ok {
			return content, nil
		}
		stream, err := r.readStream(e)
		if err != nil {
			return nil, err
		}
		content, err := r.decode(e, stream)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Add(key, content)
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}

	content, _ := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	// Shared results are cloned so callers may modify what they get.
	return slices.Clone(content), nil
}

func (r *Reader) cachedContent(key string) ([]byte, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func (r *Reader) decode(e Entry, stream []byte) ([]byte, error) {
	content, err := sealpack.Decode(stream, r.cfg.codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: %s: %w", e.Path, err)
	}
	return content, nil
}

// readStream reads the entry's encoded bytes.
func (r *Reader) readStream(e Entry) ([]byte, error) {
	return r.readRange(e.Offset, e.Size)
}

// readRange reads size bytes at offset off within the data region.
func (r *Reader) readRange(off, size uint64) ([]byte, error) {
	n, err := sizing.ToInt(size, sealpack.ErrAlloc)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	start, err := sizing.ToInt64(off, sealpack.ErrAlloc)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	buf := make([]byte, n)
	got, err := r.src.ReadAt(buf, r.dataStart+start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if got != n {
		return nil, fmt.Errorf("archive: short read (%d of %d bytes)", got, n)
	}
	return buf, nil
}

func entryKey(e Entry) string {
	return strconv.FormatUint(e.Offset, 10) + ":" + strconv.FormatUint(e.Size, 10)
}

// ReadCloser is a Reader over an archive file that must be closed.
type ReadCloser struct {
	*Reader
	file *os.File
}

// OpenFile opens the archive at path.
func OpenFile(path string, opts ...Option) (*ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := Open(src, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ReadCloser{Reader: r, file: f}, nil
}

// Close closes the underlying file.
func (rc *ReadCloser) Close() error {
	if rc.file == nil {
		return nil
	}
	err := rc.file.Close()
	rc.file = nil
	return err
}

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so we cache the size at construction.
type fileSource struct {
	file *os.File
	size int64
}

func newFileSource(f *os.File) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return &fileSource{file: f, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt.
func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return fs.file.ReadAt(p, off)
}

// Size returns the total size of the file.
func (fs *fileSource) Size() int64 {
	return fs.size
}
