package sealpack

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sealpack/sealpack/internal/batch"
	"github.com/sealpack/sealpack/internal/block"
	"github.com/sealpack/sealpack/internal/footer"
	"github.com/sealpack/sealpack/internal/sealtype"
	"github.com/sealpack/sealpack/internal/sizing"
)

// Encode compresses data into a sealed stream.
//
// The output is identical for any worker count. Encode(nil) yields a
// valid stream that decodes to an empty buffer.
func Encode(data []byte, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	pool, release := cfg.workerPool()
	defer release()

	spans := batch.Split(len(data), cfg.chunkSize)
	frames, err := batch.Run(pool, len(spans), func(i int) ([]byte, error) {
		s := spans[i]
		return block.Encode(nil, data[s.Start:s.End])
	})
	if err != nil {
		return nil, classifyPanic(err, ErrEncode)
	}

	size := 2*binary.MaxVarintLen64 + footer.Size
	for _, f := range frames {
		size += binary.MaxVarintLen64 + len(f)
	}
	out := make([]byte, 0, size)
	out = binary.AppendUvarint(out, uint64(len(data)))
	out = binary.AppendUvarint(out, uint64(len(frames)))
	for _, f := range frames {
		out = binary.AppendUvarint(out, uint64(len(f)))
		out = append(out, f...)
	}
	return footer.Append(cfg.key, out), nil
}

// Decode verifies the footer of stream and returns the original data.
//
// Integrity is checked before any frame is parsed; a mismatch fails with
// ErrIntegrity. Structural problems fail with ErrDecode, and declared
// sizes above the configured limit with ErrAlloc. Per-chunk failures are
// reported as *ChunkError.
func Decode(stream []byte, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	payload, err := verify(cfg, stream)
	if err != nil {
		return nil, err
	}
	p, err := parsePayload(payload, cfg.maxDecoded)
	if err != nil {
		return nil, err
	}

	pool, release := cfg.workerPool()
	defer release()

	out := make([]byte, p.total)
	_, err = batch.Run(pool, len(p.frames), func(i int) (struct{}, error) {
		off := p.offsets[i]
		h := p.frames[i]
		return struct{}{}, block.DecodeInto(out[off:off+h.RawLen], h)
	})
	if err != nil {
		return nil, classifyPanic(err, ErrDecode)
	}
	return out, nil
}

// Verify checks only the footer of stream.
func Verify(stream []byte, opts ...Option) error {
	_, err := verify(newConfig(opts), stream)
	return err
}

func verify(cfg *config, stream []byte) ([]byte, error) {
	payload, err := footer.Verify(cfg.key, stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sealtype.ErrIntegrity, err)
	}
	return payload, nil
}

// parsed is the frame directory of a verified payload.
type parsed struct {
	total   int
	frames  []block.Header
	offsets []int
}

func parsePayload(payload []byte, maxDecoded uint64) (*parsed, error) {
	total, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad total length", sealtype.ErrDecode)
	}
	payload = payload[n:]
	if err := sizing.CheckLimit(total, maxDecoded, sealtype.ErrAlloc); err != nil {
		return nil, fmt.Errorf("%w: stream declares %d bytes", err, total)
	}
	totalInt, err := sizing.ToInt(total, sealtype.ErrAlloc)
	if err != nil {
		return nil, fmt.Errorf("%w: stream declares %d bytes", err, total)
	}

	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad chunk count", sealtype.ErrDecode)
	}
	payload = payload[n:]
	// Each frame needs at least a length prefix and a kind byte.
	if count > uint64(len(payload))/2 {
		return nil, fmt.Errorf("%w: %d chunks declared in %d bytes", sealtype.ErrDecode, count, len(payload))
	}

	p := &parsed{
		total:   totalInt,
		frames:  make([]block.Header, 0, count),
		offsets: make([]int, 0, count),
	}
	sum := 0
	for i := range int(count) {
		frameLen, n := binary.Uvarint(payload)
		if n <= 0 || frameLen > uint64(len(payload)-n) {
			return nil, &sealtype.ChunkError{Index: i, Err: fmt.Errorf("%w: frame truncated", sealtype.ErrDecode)}
		}
		frame := payload[n : n+int(frameLen)]
		payload = payload[n+int(frameLen):]

		h, err := block.ParseHeader(frame, maxDecoded)
		if err != nil {
			return nil, &sealtype.ChunkError{Index: i, Err: err}
		}
		if h.RawLen > totalInt-sum {
			return nil, &sealtype.ChunkError{Index: i, Err: fmt.Errorf("%w: chunks exceed declared length %d", sealtype.ErrDecode, total)}
		}
		p.frames = append(p.frames, h)
		p.offsets = append(p.offsets, sum)
		sum += h.RawLen
	}
	if len(payload) != 0 {
		return nil, fmt.Errorf("%w: %d bytes after chunk %d", sealtype.ErrDecode, len(payload), count)
	}
	if sum != totalInt {
		return nil, fmt.Errorf("%w: chunks hold %d bytes, stream declares %d", sealtype.ErrDecode, sum, total)
	}
	return p, nil
}

// classifyPanic tags a recovered chunk panic with the operation's error
// kind. Other errors are returned unchanged.
func classifyPanic(err, kind error) error {
	if errors.Is(err, batch.ErrPanic) {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}
