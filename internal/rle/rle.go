// Package rle implements the run-length transform applied before
// entropy coding.
//
// An encoded block is one escape byte followed by a token stream. The
// escape is the least frequent byte value of the input (lowest value on
// ties), so it rarely needs escaping and each block carries its own.
//
//	b            literal byte b (b != escape)
//	escape 0     literal escape byte
//	escape k v   run of k+MinRun-1 copies of v (1 <= k <= 255)
package rle

import (
	"errors"
	"fmt"
)

const (
	// MinRun is the shortest run emitted as a run token.
	MinRun = 4

	// MaxRun is the longest run a single token can describe.
	MaxRun = 255 + MinRun - 1
)

var (
	// ErrCorrupt is returned for malformed token streams.
	ErrCorrupt = errors.New("rle: corrupt input")

	// ErrLimit is returned when decoded output would exceed the caller's limit.
	ErrLimit = fmt.Errorf("%w: output exceeds limit", ErrCorrupt)
)

// Escape returns the byte value Encode uses as escape for src.
func Escape(src []byte) byte {
	var hist [256]int
	for _, b := range src {
		hist[b]++
	}
	esc := 0
	for v := 1; v < 256; v++ {
		if hist[v] < hist[esc] {
			esc = v
		}
	}
	return byte(esc)
}

// Encode returns the transformed form of src. Encode(nil) is nil.
func Encode(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	esc := Escape(src)
	out := make([]byte, 0, len(src)+len(src)/64+1)
	out = append(out, esc)

	for i := 0; i < len(src); {
		b := src[i]
		run := 1
		for i+run < len(src) && src[i+run] == b && run < MaxRun {
			run++
		}
		if run >= MinRun {
			out = append(out, esc, byte(run-MinRun+1), b)
			i += run
			continue
		}
		for range run {
			if b == esc {
				out = append(out, esc, 0)
			} else {
				out = append(out, b)
			}
		}
		i += run
	}
	return out
}

// Decode reverses Encode. Decode(nil) is nil.
func Decode(src []byte) ([]byte, error) {
	return DecodeInto(nil, src, -1)
}

// DecodeInto appends the decoded form of src to dst. If limit is not
// negative, decoding fails with ErrLimit once more than limit bytes
// would be appended.
func DecodeInto(dst, src []byte, limit int) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	esc := src[0]
	base := len(dst)
	over := func(n int) bool {
		return limit >= 0 && len(dst)-base+n > limit
	}

	for i := 1; i < len(src); {
		b := src[i]
		if b != esc {
			if over(1) {
				return dst, ErrLimit
			}
			dst = append(dst, b)
			i++
			continue
		}
		if i+1 >= len(src) {
			return dst, fmt.Errorf("%w: truncated escape at offset %d", ErrCorrupt, i)
		}
		k := int(src[i+1])
		if k == 0 {
			if over(1) {
				return dst, ErrLimit
			}
			dst = append(dst, esc)
			i += 2
			continue
		}
		if i+2 >= len(src) {
			return dst, fmt.Errorf("%w: truncated run at offset %d", ErrCorrupt, i)
		}
		run := k + MinRun - 1
		if over(run) {
			return dst, ErrLimit
		}
		v := src[i+2]
		for range run {
			dst = append(dst, v)
		}
		i += 3
	}
	return dst, nil
}
