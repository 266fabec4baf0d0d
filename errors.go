package sealpack

import "github.com/sealpack/sealpack/internal/sealtype"

// Errors re-exported from sealtype.
var (
	// ErrEncode is returned when input cannot be represented.
	ErrEncode = sealtype.ErrEncode

	// ErrDecode is returned when a stream is structurally invalid.
	ErrDecode = sealtype.ErrDecode

	// ErrIntegrity is returned when the footer digest does not match.
	ErrIntegrity = sealtype.ErrIntegrity

	// ErrAlloc is returned when a declared size exceeds limits.
	ErrAlloc = sealtype.ErrAlloc
)

// ChunkError identifies the chunk whose encode or decode failed.
type ChunkError = sealtype.ChunkError
