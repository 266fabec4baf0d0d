// Package baseline measures sealpack against general-purpose
// compressors on the same input.
package baseline

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/sealpack/sealpack"
)

// Codec names a compressor.
type Codec string

// Supported codecs.
const (
	Sealpack Codec = "sealpack"
	Zstd     Codec = "zstd"
	LZ4      Codec = "lz4"
)

// Codecs lists every codec in report order.
var Codecs = []Codec{Sealpack, Zstd, LZ4}

// ErrMismatch is returned when a codec fails to reproduce its input.
var ErrMismatch = errors.New("baseline: round trip mismatch")

// Result is one codec's measurement.
type Result struct {
	Codec      Codec
	InputSize  int
	OutputSize int
	Encode     time.Duration
	Decode     time.Duration
}

// Ratio returns output size over input size. Empty input has ratio 1.
func (r Result) Ratio() float64 {
	if r.InputSize == 0 {
		return 1
	}
	return float64(r.OutputSize) / float64(r.InputSize)
}

// DecodeThroughput returns decoded bytes per second.
func (r Result) DecodeThroughput() float64 {
	if r.Decode <= 0 {
		return 0
	}
	return float64(r.InputSize) / r.Decode.Seconds()
}

// zstdEncoder and zstdDecoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic("baseline: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("baseline: zstd decoder initialization failed: " + err.Error())
	}
}

// Measure encodes and decodes data with c and checks the round trip.
func Measure(c Codec, data []byte, opts ...sealpack.Option) (Result, error) {
	res := Result{Codec: c, InputSize: len(data)}

	start := time.Now()
	encoded, err := compress(c, data, opts)
	if err != nil {
		return Result{}, fmt.Errorf("baseline: %s encode: %w", c, err)
	}
	res.Encode = time.Since(start)
	res.OutputSize = len(encoded)

	start = time.Now()
	decoded, err := decompress(c, encoded, len(data), opts)
	if err != nil {
		return Result{}, fmt.Errorf("baseline: %s decode: %w", c, err)
	}
	res.Decode = time.Since(start)

	if !bytes.Equal(decoded, data) {
		return Result{}, fmt.Errorf("%w: %s", ErrMismatch, c)
	}
	return res, nil
}

// Compare measures every codec in Codecs.
func Compare(data []byte, opts ...sealpack.Option) ([]Result, error) {
	results := make([]Result, 0, len(Codecs))
	for _, c := range Codecs {
		res, err := Measure(c, data, opts...)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func compress(c Codec, data []byte, opts []sealpack.Option) ([]byte, error) {
	switch c {
	case Sealpack:
		return sealpack.Encode(data, opts...)
	case Zstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case LZ4:
		return compressLZ4(data)
	default:
		return nil, fmt.Errorf("unknown codec %q", c)
	}
}

func decompress(c Codec, encoded []byte, size int, opts []sealpack.Option) ([]byte, error) {
	switch c {
	case Sealpack:
		return sealpack.Decode(encoded, opts...)
	case Zstd:
		return zstdDecoder.DecodeAll(encoded, make([]byte, 0, size))
	case LZ4:
		return decompressLZ4(encoded, size)
	default:
		return nil, fmt.Errorf("unknown codec %q", c)
	}
}

// LZ4 blocks carry a one-byte tag: 0 for stored, 1 for compressed.
func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, 1+lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst[1:], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		dst = append(dst[:1], data...)
		dst[0] = 0
		return dst, nil
	}
	dst[0] = 1
	return dst[:1+n], nil
}

func decompressLZ4(src []byte, size int) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("lz4: empty block")
	}
	if src[0] == 0 {
		return bytes.Clone(src[1:]), nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src[1:], dst)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("lz4: got %d bytes, expected %d", n, size)
	}
	return dst, nil
}
