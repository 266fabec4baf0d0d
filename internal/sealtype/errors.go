package sealtype

import (
	"errors"
	"fmt"
)

// Sentinel errors for codec operations. Every failure returned by the
// codec wraps exactly one of these.
var (
	// ErrEncode is returned when input cannot be represented.
	ErrEncode = errors.New("sealpack: encode failed")

	// ErrDecode is returned when a stream is structurally invalid: a
	// malformed code-length table, a truncated bit stream or a chunk
	// count mismatch.
	ErrDecode = errors.New("sealpack: decode failed")

	// ErrIntegrity is returned when the footer digest does not match
	// the payload.
	ErrIntegrity = errors.New("sealpack: integrity check failed")

	// ErrAlloc is returned when a declared size exceeds supported or
	// configured limits.
	ErrAlloc = errors.New("sealpack: allocation failed")
)

// ChunkError identifies the chunk whose encode or decode failed.
//
// The failure kind is carried by the wrapped error, so errors.Is
// against the sentinels above still works.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
