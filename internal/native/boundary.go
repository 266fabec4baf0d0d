package native

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/sealpack/sealpack"
)

// Allocator provides memory whose ownership crosses the boundary.
// Alloc returns nil when memory is exhausted.
type Allocator interface {
	Alloc(n uint) unsafe.Pointer
	Free(p unsafe.Pointer)
}

// Boundary serves encode, decode and release calls. It is safe for
// concurrent use.
type Boundary struct {
	alloc     Allocator
	codecOpts []sealpack.Option
	logger    *slog.Logger
	getenv    func(string) string

	mu      sync.RWMutex
	gate    Gate
	license License
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithGate installs a license gate. By default every transform runs.
func WithGate(g Gate) Option {
	return func(b *Boundary) {
		b.gate = g
	}
}

// WithCodecOptions passes options to every Encode and Decode.
func WithCodecOptions(opts ...sealpack.Option) Option {
	return func(b *Boundary) {
		b.codecOpts = append(b.codecOpts, opts...)
	}
}

// WithLogger sets the logger for denied and failed calls.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Boundary) {
		b.logger = logger
	}
}

// WithGetenv replaces the environment lookup used for SecretEnv.
func WithGetenv(getenv func(string) string) Option {
	return func(b *Boundary) {
		b.getenv = getenv
	}
}

// New returns a Boundary that allocates output buffers from alloc.
func New(alloc Allocator, opts ...Option) *Boundary {
	b := &Boundary{alloc: alloc, getenv: defaultGetenv}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Boundary) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Encode encodes n bytes at in. On OK, *out holds a buffer of *outLen
// bytes that the caller must hand back to Release exactly once.
func (b *Boundary) Encode(in unsafe.Pointer, n uint, out *unsafe.Pointer, outLen *uint) Status {
	return b.transform("encode", in, n, out, outLen, func(src []byte) ([]byte, Status) {
		stream, err := sealpack.Encode(src, b.codecOpts...)
		if err != nil {
			b.log().Debug("encode failed", "error", err)
			return nil, StatusOf(err, EncodeFail)
		}
		return stream, OK
	})
}

// Decode verifies and decodes the stream of n bytes at in. Ownership of
// the output follows Encode.
func (b *Boundary) Decode(in unsafe.Pointer, n uint, out *unsafe.Pointer, outLen *uint) Status {
	return b.transform("decode", in, n, out, outLen, func(src []byte) ([]byte, Status) {
		data, err := sealpack.Decode(src, b.codecOpts...)
		if err != nil {
			b.log().Debug("decode failed", "error", err)
			return nil, StatusOf(err, DecodeFail)
		}
		return data, OK
	})
}

// Release frees a buffer returned by Encode or Decode. A nil pointer is
// ignored.
func (b *Boundary) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	b.alloc.Free(p)
}

func (b *Boundary) transform(op string, in unsafe.Pointer, n uint, out *unsafe.Pointer, outLen *uint,
	fn func([]byte) ([]byte, Status),
) (status Status) {
	if in == nil || out == nil || outLen == nil {
		return NullPointer
	}
	if err := b.check(); err != nil {
		b.log().Warn("transform denied", "op", op, "error", err)
		return LicenseDenied
	}
	defer func() {
		if r := recover(); r != nil {
			b.log().Error("transform panicked", "op", op, "panic", r)
			status = fallbackFor(op)
		}
	}()

	src := unsafe.Slice((*byte)(in), n)
	result, st := fn(src)
	if st != OK {
		return st
	}

	// Zero-length results still get a distinct, releasable buffer.
	p := b.alloc.Alloc(max(uint(len(result)), 1))
	if p == nil {
		return AllocFail
	}
	copy(unsafe.Slice((*byte)(p), len(result)), result)
	*out = p
	*outLen = uint(len(result))
	return OK
}

func fallbackFor(op string) Status {
	if op == "encode" {
		return EncodeFail
	}
	return DecodeFail
}
