// Package block encodes and decodes the frame that carries one chunk.
//
// A frame starts with a kind byte:
//
//	0 raw:      uvarint(rawLen) | raw bytes
//	1 huffman:  uvarint(rawLen) | uvarint(symbols) | lengths[256] | bits
//
// symbols is the length of the RLE stream that the bits decode to. The
// huffman kind is only written when it is strictly smaller than the raw
// frame.
package block

import (
	"encoding/binary"
	"fmt"

	"github.com/sealpack/sealpack/internal/bitio"
	"github.com/sealpack/sealpack/internal/huffman"
	"github.com/sealpack/sealpack/internal/rle"
	"github.com/sealpack/sealpack/internal/sealtype"
	"github.com/sealpack/sealpack/internal/sizing"
)

// Kind identifies how a frame body is stored.
type Kind byte

const (
	KindRaw     Kind = 0
	KindHuffman Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindHuffman:
		return "huffman"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Header is the parsed prefix of a frame.
type Header struct {
	Kind   Kind
	RawLen int

	// body is the frame remainder after rawLen.
	body []byte
}

func uvarintLen(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], v)
}

// Encode appends the frame for chunk to dst.
func Encode(dst, chunk []byte) ([]byte, error) {
	rawSize := 1 + uvarintLen(uint64(len(chunk))) + len(chunk)

	if len(chunk) > 0 {
		stream := rle.Encode(chunk)
		hist := huffman.Histogram(stream)
		lens := huffman.Build(hist)
		enc, err := huffman.NewEncoder(&lens)
		if err != nil {
			return dst, fmt.Errorf("%w: %w", sealtype.ErrEncode, err)
		}
		bits := enc.EncodedBits(hist)
		size := 1 + uvarintLen(uint64(len(chunk))) + uvarintLen(uint64(len(stream))) +
			huffman.TableSize + int((bits+7)/8)
		if size < rawSize {
			return appendHuffman(dst, chunk, stream, &lens, enc)
		}
	}

	dst = append(dst, byte(KindRaw))
	dst = binary.AppendUvarint(dst, uint64(len(chunk)))
	return append(dst, chunk...), nil
}

func appendHuffman(dst, chunk, stream []byte, lens *huffman.Lengths, enc *huffman.Encoder) ([]byte, error) {
	w := bitio.NewWriter(len(stream))
	if err := enc.Encode(w, stream); err != nil {
		return dst, fmt.Errorf("%w: %w", sealtype.ErrEncode, err)
	}
	bits, err := w.Finish()
	if err != nil {
		return dst, fmt.Errorf("%w: %w", sealtype.ErrEncode, err)
	}

	dst = append(dst, byte(KindHuffman))
	dst = binary.AppendUvarint(dst, uint64(len(chunk)))
	dst = binary.AppendUvarint(dst, uint64(len(stream)))
	dst = lens.AppendTo(dst)
	return append(dst, bits...), nil
}

// ParseHeader reads the kind and decoded length of frame. Lengths
// above maxRawLen fail with ErrAlloc; a maxRawLen of 0 disables the
// check.
func ParseHeader(frame []byte, maxRawLen uint64) (Header, error) {
	if len(frame) == 0 {
		return Header{}, fmt.Errorf("%w: empty frame", sealtype.ErrDecode)
	}
	kind := Kind(frame[0])
	if kind != KindRaw && kind != KindHuffman {
		return Header{}, fmt.Errorf("%w: unknown frame %v", sealtype.ErrDecode, kind)
	}
	rawLen, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return Header{}, fmt.Errorf("%w: bad length in %v frame", sealtype.ErrDecode, kind)
	}
	if err := sizing.CheckLimit(rawLen, maxRawLen, sealtype.ErrAlloc); err != nil {
		return Header{}, fmt.Errorf("%w: frame declares %d bytes", err, rawLen)
	}
	size, err := sizing.ToInt(rawLen, sealtype.ErrAlloc)
	if err != nil {
		return Header{}, fmt.Errorf("%w: frame declares %d bytes", err, rawLen)
	}
	return Header{Kind: kind, RawLen: size, body: frame[1+n:]}, nil
}

// DecodeInto decodes the frame described by h into dst, which must be
// exactly h.RawLen bytes long.
func DecodeInto(dst []byte, h Header) error {
	if len(dst) != h.RawLen {
		return fmt.Errorf("%w: destination is %d bytes, frame holds %d", sealtype.ErrDecode, len(dst), h.RawLen)
	}
	switch h.Kind {
	case KindRaw:
		if len(h.body) != h.RawLen {
			return fmt.Errorf("%w: raw frame holds %d bytes, header says %d", sealtype.ErrDecode, len(h.body), h.RawLen)
		}
		copy(dst, h.body)
		return nil
	case KindHuffman:
		return decodeHuffman(dst, h.body)
	default:
		return fmt.Errorf("%w: unknown frame %v", sealtype.ErrDecode, h.Kind)
	}
}

func decodeHuffman(dst, body []byte) error {
	symbols, n := binary.Uvarint(body)
	if n <= 0 {
		return fmt.Errorf("%w: bad symbol count", sealtype.ErrDecode)
	}
	body = body[n:]

	lens, err := huffman.ReadLengths(body)
	if err != nil {
		return fmt.Errorf("%w: %w", sealtype.ErrDecode, err)
	}
	bits := body[huffman.TableSize:]

	// Every symbol costs at least one bit and expands to at most MaxRun bytes.
	if symbols > 8*uint64(len(bits)) {
		return fmt.Errorf("%w: %d symbols in %d bytes", sealtype.ErrDecode, symbols, len(bits))
	}
	if !sizing.MulFits(symbols, rle.MaxRun) || uint64(len(dst)) > symbols*rle.MaxRun {
		return fmt.Errorf("%w: %d symbols cannot expand to %d bytes", sealtype.ErrDecode, symbols, len(dst))
	}

	dec, err := huffman.NewDecoder(&lens)
	if err != nil {
		return fmt.Errorf("%w: %w", sealtype.ErrDecode, err)
	}
	defer dec.Release()

	stream := make([]byte, symbols)
	r := bitio.NewReader(bits)
	if err := dec.Decode(r, stream); err != nil {
		return fmt.Errorf("%w: %w", sealtype.ErrDecode, err)
	}
	if r.Remaining() >= 8 {
		return fmt.Errorf("%w: %d trailing bits", sealtype.ErrDecode, r.Remaining())
	}

	out, err := rle.DecodeInto(dst[:0], stream, len(dst))
	if err != nil {
		return fmt.Errorf("%w: %w", sealtype.ErrDecode, err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: frame decoded to %d bytes, header says %d", sealtype.ErrDecode, len(out), len(dst))
	}
	return nil
}
