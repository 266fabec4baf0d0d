package huffman

import (
	"fmt"

	"github.com/sealpack/sealpack/internal/bitio"
)

// Encoder writes symbols using a canonical code.
type Encoder struct {
	lens  Lengths
	codes [NumSymbols]uint16
}

// NewEncoder derives the canonical code for lens.
func NewEncoder(lens *Lengths) (*Encoder, error) {
	codes, err := Canonical(lens)
	if err != nil {
		return nil, err
	}
	return &Encoder{lens: *lens, codes: codes}, nil
}

// EncodedBits returns the size in bits of the data described by hist.
func (e *Encoder) EncodedBits(hist *[NumSymbols]uint32) uint64 {
	var bits uint64
	for sym, c := range hist {
		bits += uint64(c) * uint64(e.lens[sym])
	}
	return bits
}

// Encode writes the code of every byte of data to w.
func (e *Encoder) Encode(w *bitio.Writer, data []byte) error {
	for _, b := range data {
		n := e.lens[b]
		if n == 0 {
			return fmt.Errorf("%w: %#02x", ErrUnknownSymbol, b)
		}
		w.WriteBits(e.codes[b], n)
	}
	return nil
}
