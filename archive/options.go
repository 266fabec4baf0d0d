package archive

import (
	"log/slog"
	"runtime"

	"github.com/sealpack/sealpack"
)

// DefaultReadAheadBytes bounds the stream bytes buffered by Unpack and
// Fsck while entries wait to be decoded.
const DefaultReadAheadBytes = 64 << 20

// Option configures Pack, PackPaths, Open, Unpack and Fsck.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	concurrency int
	codecOpts   []sealpack.Option
	cacheSize   int
	readAhead   uint64
	progress    ProgressFunc
	overwrite   bool
}

func newConfig(opts []Option) *config {
	c := &config{
		readAhead: DefaultReadAheadBytes,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// workers returns the number of files handled concurrently.
func (c *config) workers() int {
	if c.concurrency > 0 {
		return c.concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// reportProgress sends a progress event if a callback is configured.
func (c *config) reportProgress(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithConcurrency sets how many files are encoded or decoded at once.
// Values <= 0 use GOMAXPROCS. Chunks within a file are always spread
// over the codec's worker pool.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithCodecOptions passes options to every sealpack.Encode and
// sealpack.Decode call.
func WithCodecOptions(opts ...sealpack.Option) Option {
	return func(c *config) {
		c.codecOpts = append(c.codecOpts, opts...)
	}
}

// WithCache keeps up to n decoded entries in an LRU cache.
// Zero (the default) disables caching.
func WithCache(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

// WithReadAheadBytes caps the stream bytes buffered ahead of decoding.
// A value of 0 disables the byte budget.
func WithReadAheadBytes(limit uint64) Option {
	return func(c *config) {
		c.readAhead = limit
	}
}

// WithProgress sets a callback for progress events.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithOverwrite lets Unpack replace existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.overwrite = overwrite
	}
}
