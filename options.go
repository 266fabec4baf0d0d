package sealpack

import (
	"github.com/sealpack/sealpack/internal/batch"
	"github.com/sealpack/sealpack/internal/footer"
)

const (
	// DefaultChunkSize is the number of input bytes encoded per chunk.
	DefaultChunkSize = 64 << 10

	// DefaultMaxDecodedSize bounds the decoded size a stream may declare.
	DefaultMaxDecodedSize = 1 << 30

	// FooterSize is the length of the integrity footer.
	FooterSize = footer.Size
)

// Pool is a worker pool shared by codec calls.
type Pool = batch.Pool

// NewPool starts a pool with n workers; n <= 0 uses GOMAXPROCS.
// Close it when no longer needed.
func NewPool(n int) *Pool {
	return batch.NewPool(n)
}

// Option configures Encode, Decode and Verify.
type Option func(*config)

type config struct {
	pool       *batch.Pool
	workers    int
	chunkSize  int
	key        *footer.Key
	maxDecoded uint64
}

func newConfig(opts []Option) *config {
	c := &config{
		chunkSize:  DefaultChunkSize,
		maxDecoded: DefaultMaxDecodedSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// workerPool returns the pool to run on and a release function.
func (c *config) workerPool() (*batch.Pool, func()) {
	switch {
	case c.pool != nil:
		return c.pool, func() {}
	case c.workers > 0:
		p := batch.NewPool(c.workers)
		return p, p.Close
	default:
		return batch.Default(), func() {}
	}
}

// WithPool runs chunk tasks on p instead of the process-wide pool.
func WithPool(p *Pool) Option {
	return func(c *config) {
		c.pool = p
	}
}

// WithWorkers runs the call on a private pool of n workers.
// Zero or negative values use the process-wide pool.
// WithPool takes precedence.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithChunkSize sets the number of input bytes per chunk.
// Values <= 0 encode the whole input as one chunk.
// The chunk size does not need to match between Encode and Decode.
func WithChunkSize(n int) Option {
	return func(c *config) {
		c.chunkSize = n
	}
}

// WithKey seals and verifies streams with BLAKE3 in keyed mode.
// Streams sealed with a key only verify with the same key.
func WithKey(key [32]byte) Option {
	return func(c *config) {
		k := footer.Key(key)
		c.key = &k
	}
}

// WithMaxDecodedSize limits the decoded size a stream may declare.
// Larger declarations fail with ErrAlloc. Set limit to 0 to disable.
func WithMaxDecodedSize(limit uint64) Option {
	return func(c *config) {
		c.maxDecoded = limit
	}
}
