package sealpack

import (
	"github.com/sealpack/sealpack/internal/block"
)

// Info describes an encoded stream without decoding it.
type Info struct {
	// DecodedSize is the length of the original data.
	DecodedSize int

	// EncodedSize is the length of the stream, footer included.
	EncodedSize int

	// Chunks is the number of frames.
	Chunks int

	// RawChunks is the number of frames stored without entropy coding.
	RawChunks int
}

// Ratio returns EncodedSize / DecodedSize, or 0 for empty data.
func (i Info) Ratio() float64 {
	if i.DecodedSize == 0 {
		return 0
	}
	return float64(i.EncodedSize) / float64(i.DecodedSize)
}

// Inspect verifies the footer and parses the frame directory of stream.
func Inspect(stream []byte, opts ...Option) (Info, error) {
	cfg := newConfig(opts)
	payload, err := verify(cfg, stream)
	if err != nil {
		return Info{}, err
	}
	p, err := parsePayload(payload, cfg.maxDecoded)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		DecodedSize: p.total,
		EncodedSize: len(stream),
		Chunks:      len(p.frames),
	}
	for _, h := range p.frames {
		if h.Kind == block.KindRaw {
			info.RawChunks++
		}
	}
	return info, nil
}
