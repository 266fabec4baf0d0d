// Package sealtype defines shared types used across the sealpack packages.
// This avoids circular imports between the root package, archive and the
// internal codec packages.
package sealtype

// Entry describes one file packed into an archive.
type Entry struct {
	// Path is the slash-separated path relative to the archive root
	// (e.g., "src/main.go").
	Path string

	// Offset is the byte offset of the entry's stream, measured from the
	// first byte after the header and entry table.
	Offset uint64

	// Size is the length of the entry's stream, footer included.
	Size uint64
}

// End returns the offset one past the entry's last byte and false if
// the sum overflows.
func (e Entry) End() (uint64, bool) {
	end := e.Offset + e.Size
	if end < e.Offset {
		return 0, false
	}
	return end, true
}
