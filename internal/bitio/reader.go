package bitio

import "errors"

// ErrUnexpectedEnd is returned when a read needs more bits than remain.
var ErrUnexpectedEnd = errors.New("bitio: unexpected end of bit stream")

// Reader consumes bits most-significant-first from a byte slice.
//
// Pending bits are kept left-aligned in a 64-bit accumulator so that
// Peek is a single shift. Bits past the end of the buffer read as zero.
type Reader struct {
	buf []byte
	pos int
	acc uint64
	n   uint
}

// NewReader returns a Reader over buf. The Reader does not copy buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) refill() {
	for r.n <= 56 && r.pos < len(r.buf) {
		r.acc |= uint64(r.buf[r.pos]) << (56 - r.n)
		r.pos++
		r.n += 8
	}
}

// Remaining returns the number of unread bits, padding included.
func (r *Reader) Remaining() uint64 {
	return uint64(r.n) + 8*uint64(len(r.buf)-r.pos)
}

// Peek returns the next n bits (1 <= n <= 32) without consuming them.
// Bits beyond the end of the buffer are zero.
func (r *Reader) Peek(n uint) uint32 {
	if r.n < n {
		r.refill()
	}
	return uint32(r.acc >> (64 - n))
}

// Consume drops n bits (n <= 32).
func (r *Reader) Consume(n uint) error {
	if uint64(n) > r.Remaining() {
		return ErrUnexpectedEnd
	}
	if r.n < n {
		r.refill()
	}
	r.acc <<= n
	r.n -= n
	return nil
}

// ReadBits reads the next n bits (1 <= n <= 32).
func (r *Reader) ReadBits(n uint) (uint32, error) {
	v := r.Peek(n)
	if err := r.Consume(n); err != nil {
		return 0, err
	}
	return v, nil
}
