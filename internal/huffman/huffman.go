// Package huffman implements the length-limited canonical Huffman code
// used by the block codec.
//
// Only code lengths are transmitted: a table of exactly 256 one-byte
// lengths (0 = unused symbol). Codes are derived from the lengths by
// Canonical, which both encoder and decoder call, so the two sides
// cannot drift.
package huffman

import (
	"errors"
	"fmt"
)

const (
	// MaxCodeLen is the longest permitted code, in bits.
	MaxCodeLen = 15

	// NumSymbols is the alphabet size.
	NumSymbols = 256

	// TableSize is the serialized size of a code-length table.
	TableSize = NumSymbols
)

var (
	// ErrInvalidTable is returned for code-length tables that are not a
	// usable prefix code.
	ErrInvalidTable = errors.New("huffman: invalid code-length table")

	// ErrInvalidCode is returned when the bit stream contains a code
	// that the table does not assign.
	ErrInvalidCode = errors.New("huffman: invalid code in bit stream")

	// ErrUnknownSymbol is returned when encoding a byte that has no code.
	ErrUnknownSymbol = errors.New("huffman: symbol has no code")
)

// Lengths holds the code length of every byte value; 0 marks an unused
// symbol.
type Lengths [NumSymbols]uint8

// Histogram counts byte frequencies in data.
func Histogram(data []byte) *[NumSymbols]uint32 {
	var hist [NumSymbols]uint32
	for _, b := range data {
		hist[b]++
	}
	return &hist
}

// Validate checks that every length is at most MaxCodeLen, that at
// least one symbol is used, and that the lengths satisfy the Kraft
// inequality. Incomplete codes are accepted; a lone symbol has length 1.
func (l *Lengths) Validate() error {
	var kraft uint32
	used := 0
	for sym, n := range l {
		if n == 0 {
			continue
		}
		if n > MaxCodeLen {
			return fmt.Errorf("%w: symbol %d has length %d", ErrInvalidTable, sym, n)
		}
		kraft += 1 << (MaxCodeLen - n)
		used++
	}
	if used == 0 {
		return fmt.Errorf("%w: no symbols", ErrInvalidTable)
	}
	if kraft > 1<<MaxCodeLen {
		return fmt.Errorf("%w: lengths oversubscribe the code space", ErrInvalidTable)
	}
	return nil
}

// MaxLen returns the longest code length in the table.
func (l *Lengths) MaxLen() uint8 {
	var m uint8
	for _, n := range l {
		m = max(m, n)
	}
	return m
}

// AppendTo appends the serialized table to dst.
func (l *Lengths) AppendTo(dst []byte) []byte {
	return append(dst, l[:]...)
}

// ReadLengths parses a serialized table from the front of src.
// The table is not validated.
func ReadLengths(src []byte) (Lengths, error) {
	var l Lengths
	if len(src) < TableSize {
		return l, fmt.Errorf("%w: table truncated (%d of %d bytes)", ErrInvalidTable, len(src), TableSize)
	}
	copy(l[:], src[:TableSize])
	return l, nil
}

// Canonical derives the code of every symbol from the lengths. Codes are
// assigned in increasing length, then increasing symbol value, and are
// returned right-aligned (the low n bits of codes[sym] hold the code).
func Canonical(l *Lengths) ([NumSymbols]uint16, error) {
	var codes [NumSymbols]uint16
	if err := l.Validate(); err != nil {
		return codes, err
	}

	var count [MaxCodeLen + 1]uint16
	for _, n := range l {
		count[n]++
	}
	count[0] = 0

	var next [MaxCodeLen + 1]uint16
	code := uint16(0)
	for bits := 1; bits <= MaxCodeLen; bits++ {
		code = (code + count[bits-1]) << 1
		next[bits] = code
	}
	for sym, n := range l {
		if n != 0 {
			codes[sym] = next[n]
			next[n]++
		}
	}
	return codes, nil
}
