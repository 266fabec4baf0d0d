package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the size of a cached block.
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocksPerRead is the widest read that goes through the
// cache. Wider reads, such as the grouped reads of Unpack and Fsck, go
// straight to the source.
const DefaultMaxBlocksPerRead = 4

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// ByteSource is the random-access input wrapped by a BlockCache.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// BlockCache stores blocks as files under a directory, sharded by key
// prefix. It is safe for concurrent use, including by several processes
// sharing the directory.
type BlockCache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	bytes          atomic.Int64
	fetchGroup     singleflight.Group
	pruneMu        sync.Mutex
}

// Option configures a BlockCache.
type Option func(*BlockCache)

// WithMaxBytes bounds the cache size. Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets how many hex characters of a key name its
// subdirectory. Zero disables sharding.
func WithShardPrefixLen(n int) Option {
	return func(c *BlockCache) {
		c.shardPrefixLen = n
	}
}

// New creates a block cache rooted at dir.
func New(dir string, opts ...Option) (*BlockCache, error) {
	if dir == "" {
		return nil, errors.New("cache: dir is empty")
	}
	c := &BlockCache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("cache: shard prefix length must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.bytes.Store(size)
	return c, nil
}

// WrapOption configures a wrapped source.
type WrapOption func(*Source)

// WithBlockSize sets the block size. Sources sharing an ID must use the
// same block size to share blocks.
func WithBlockSize(n int64) WrapOption {
	return func(s *Source) {
		s.blockSize = n
	}
}

// WithMaxBlocksPerRead bypasses the cache for reads spanning more than n
// blocks. Values <= 0 cache every read.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(s *Source) {
		s.maxBlocksPerRead = n
	}
}

// Wrap returns a ByteSource that reads src through the cache. id
// identifies the content of src.
func (c *BlockCache) Wrap(src ByteSource, id string, opts ...WrapOption) (*Source, error) {
	if src == nil {
		return nil, errors.New("cache: source is nil")
	}
	if id == "" {
		return nil, errors.New("cache: source id is empty")
	}
	s := &Source{
		src:              src,
		cache:            c,
		id:               id,
		blockSize:        DefaultBlockSize,
		maxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blockSize <= 0 {
		return nil, errors.New("cache: block size must be > 0")
	}
	return s, nil
}

// MaxBytes returns the size limit, 0 when unlimited.
func (c *BlockCache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the bytes currently cached.
func (c *BlockCache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the oldest blocks until at most targetBytes remain and
// returns the bytes freed.
func (c *BlockCache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

// Source is a ByteSource backed by a BlockCache.
type Source struct {
	src              ByteSource
	cache            *BlockCache
	id               string
	blockSize        int64
	maxBlocksPerRead int
}

// Size returns the size of the wrapped source.
func (s *Source) Size() int64 {
	return s.src.Size()
}

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("cache: read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), size-off)
	first := off / s.blockSize
	last := (off + want - 1) / s.blockSize
	if s.maxBlocksPerRead > 0 && last-first+1 > int64(s.maxBlocksPerRead) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for i := first; i <= last; i++ {
		blockStart := i * s.blockSize
		blockEnd := min(blockStart+s.blockSize, size)

		data, err := s.cache.block(s.key(i), blockEnd-blockStart, func() ([]byte, error) {
			return s.fetch(blockStart, blockEnd-blockStart)
		})
		if err != nil {
			return int(n), err
		}

		from := max(off, blockStart)
		to := min(off+want, blockEnd)
		n += int64(copy(p[from-off:to-off], data[from-blockStart:to-blockStart]))
	}

	if want < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (s *Source) fetch(off, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := s.src.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

// key derives the file name of block i from the source ID and block
// geometry.
func (s *Source) key(i int64) string {
	h := blake3.New()
	_, _ = h.Write([]byte(s.id)) //nolint:errcheck // hash writes never fail
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(s.blockSize)) //nolint:gosec // validated > 0
	binary.BigEndian.PutUint64(buf[8:], uint64(i))           //nolint:gosec // block index is never negative
	_, _ = h.Write(buf[:])                                   //nolint:errcheck // hash writes never fail
	return hex.EncodeToString(h.Sum(nil))
}

func (c *BlockCache) block(key string, length int64, fetch func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		path := c.path(key)
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash
		switch {
		case err == nil && int64(len(data)) == length:
			return data, nil
		case err == nil:
			c.bytes.Add(-int64(len(data)))
			_ = os.Remove(path) //nolint:errcheck // rewritten below
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		data, err = fetch()
		if err != nil {
			return nil, err
		}
		// A failed write only costs a refetch next time.
		_ = c.write(path, data) //nolint:errcheck // cache writes are best-effort
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:errcheck,forcetypeassert // always []byte when err is nil
}

func (c *BlockCache) write(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if ok, err := c.ensureCapacity(int64(len(data))); err != nil || !ok {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "block-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(int64(len(data)))
	return nil
}

func (c *BlockCache) path(key string) string {
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, key)
	}
	return filepath.Join(c.dir, key[:min(c.shardPrefixLen, len(key))], key)
}

func (c *BlockCache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}
