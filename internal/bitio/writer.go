package bitio

import (
	"bytes"

	"github.com/icza/bitio"
)

// Writer accumulates bits most-significant-first into a byte buffer.
//
// Completed bytes are flushed into the buffer as they fill; nothing is
// allocated per bit.
type Writer struct {
	buf  bytes.Buffer
	bw   *bitio.Writer
	bits uint64
	err  error
}

// NewWriter returns a Writer whose buffer is pre-sized to sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	w := &Writer{}
	if sizeHint > 0 {
		w.buf.Grow(sizeHint)
	}
	w.bw = bitio.NewWriter(&w.buf)
	return w
}

// WriteBits appends the n low bits of code, most significant first.
// n must not exceed 16.
func (w *Writer) WriteBits(code uint16, n uint8) {
	if w.err != nil || n == 0 {
		return
	}
	w.err = w.bw.WriteBits(uint64(code)&(1<<n-1), n)
	w.bits += uint64(n)
}

// Bits returns the number of bits written so far.
func (w *Writer) Bits() uint64 {
	return w.bits
}

// Finish pads the last byte with zero bits and returns the buffer.
// The Writer must not be used afterwards.
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if err := w.bw.Close(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}
