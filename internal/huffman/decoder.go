package huffman

import (
	"fmt"
	"sync"

	"github.com/sealpack/sealpack/internal/bitio"
)

// Lookup entries pack symbol<<4 | length. Every valid code has a
// non-zero length, so a zero entry marks an unassigned code.
const lookupSize = 1 << MaxCodeLen

// lookupPool recycles lookup memory. A table's contents are rebuilt
// from scratch for every block.
var lookupPool = sync.Pool{
	New: func() any {
		t := make([]uint16, lookupSize)
		return &t
	},
}

// Decoder reads symbols with a single-level lookup indexed by the next
// MaxCodeLen bits of the stream.
type Decoder struct {
	table *[]uint16
}

// NewDecoder validates lens and builds the lookup table.
// Call Release when done to return the table memory.
func NewDecoder(lens *Lengths) (*Decoder, error) {
	codes, err := Canonical(lens)
	if err != nil {
		return nil, err
	}

	tp := lookupPool.Get().(*[]uint16) //nolint:errcheck // pool only holds *[]uint16
	t := *tp
	clear(t)
	for sym, n := range lens {
		if n == 0 {
			continue
		}
		shift := MaxCodeLen - n
		start := int(codes[sym]) << shift
		entry := uint16(sym)<<4 | uint16(n)
		for i := start; i < start+1<<shift; i++ {
			t[i] = entry
		}
	}
	return &Decoder{table: tp}, nil
}

// Decode fills dst with exactly len(dst) symbols read from r.
func (d *Decoder) Decode(r *bitio.Reader, dst []byte) error {
	t := *d.table
	for i := range dst {
		e := t[r.Peek(MaxCodeLen)]
		if e == 0 {
			return fmt.Errorf("%w: at symbol %d", ErrInvalidCode, i)
		}
		if err := r.Consume(uint(e & 0xF)); err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}
		dst[i] = byte(e >> 4)
	}
	return nil
}

// Release returns the lookup memory to the pool. The Decoder must not
// be used afterwards.
func (d *Decoder) Release() {
	if d.table == nil {
		return
	}
	lookupPool.Put(d.table)
	d.table = nil
}
