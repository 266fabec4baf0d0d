package archive

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/sealpack/sealpack/internal/sealtype"
)

// Magic identifies an archive and its format version.
const Magic = "SEALPAK\x01"

const (
	headerSize     = len(Magic) + 4
	entryFixedSize = 2 + 8 + 8

	// MaxPathLen is the longest path an entry can carry.
	MaxPathLen = math.MaxUint16
)

// Entry describes one packed file.
type Entry = sealtype.Entry

// validPath reports whether p can be stored: non-empty, at most
// MaxPathLen bytes, and a clean slash-separated relative path.
func validPath(p string) error {
	if p == "" || len(p) > MaxPathLen || p == "." || !fs.ValidPath(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// tableSize returns the encoded size of header and entry table.
func tableSize(entries []Entry) int {
	n := headerSize
	for _, e := range entries {
		n += entryFixedSize + len(e.Path)
	}
	return n
}

// appendTable appends the header and entry table to dst.
func appendTable(dst []byte, entries []Entry) []byte {
	dst = append(dst, Magic...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(entries))) //nolint:gosec // count checked by caller
	for _, e := range entries {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(e.Path))) //nolint:gosec // length checked by validPath
		dst = append(dst, e.Path...)
		dst = binary.LittleEndian.AppendUint64(dst, e.Offset)
		dst = binary.LittleEndian.AppendUint64(dst, e.Size)
	}
	return dst
}

// readTable parses the header and entry table from src and checks that
// every entry lies inside the data region. It returns the entries and
// the offset of the data region.
func readTable(src ByteSource) ([]Entry, int64, error) {
	size := src.Size()
	if size < int64(headerSize) {
		return nil, 0, fmt.Errorf("%w: %d bytes is too short", ErrInvalidArchive, size)
	}

	br := bufio.NewReader(io.NewSectionReader(src, 0, size))
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, 0, fmt.Errorf("archive: read header: %w", err)
	}
	if string(hdr[:len(Magic)]) != Magic {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrInvalidArchive, hdr[:len(Magic)])
	}
	count := binary.LittleEndian.Uint32(hdr[len(Magic):])
	if uint64(count)*entryFixedSize > uint64(size-int64(headerSize)) {
		return nil, 0, fmt.Errorf("%w: %d entries cannot fit in %d bytes", ErrInvalidArchive, count, size)
	}

	entries := make([]Entry, 0, count)
	pos := int64(headerSize)
	var fixed [8 + 8]byte
	for i := range count {
		var lenBuf [2]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, 0, tableErr(i, err)
		}
		pathLen := int(binary.LittleEndian.Uint16(lenBuf[:]))
		path := make([]byte, pathLen)
		if _, err := io.ReadFull(br, path); err != nil {
			return nil, 0, tableErr(i, err)
		}
		if _, err := io.ReadFull(br, fixed[:]); err != nil {
			return nil, 0, tableErr(i, err)
		}
		if pathLen == 0 {
			return nil, 0, fmt.Errorf("%w: entry %d has an empty path", ErrInvalidArchive, i)
		}
		entries = append(entries, Entry{
			Path:   string(path),
			Offset: binary.LittleEndian.Uint64(fixed[:8]),
			Size:   binary.LittleEndian.Uint64(fixed[8:]),
		})
		pos += int64(entryFixedSize + pathLen)
	}

	dataLen := uint64(size - pos) //nolint:gosec // pos <= size after successful reads
	for i, e := range entries {
		end, ok := e.End()
		if !ok || end > dataLen {
			return nil, 0, fmt.Errorf("%w: entry %d (%s) spans [%d, %d+%d) beyond data length %d",
				ErrInvalidArchive, i, e.Path, e.Offset, e.Offset, e.Size, dataLen)
		}
	}
	return entries, pos, nil
}

func tableErr(i uint32, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: entry table truncated at entry %d", ErrInvalidArchive, i)
	}
	return fmt.Errorf("archive: read entry %d: %w", i, err)
}
