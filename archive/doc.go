// Package archive packs many files into a single sealpack container.
//
// Layout (little-endian):
//
//	magic   "SEALPAK\x01"                      8 bytes
//	count   uint32                             4 bytes
//	entries { pathLen uint16 | path | offset uint64 | size uint64 } * count
//	data    concatenated sealpack streams
//
// Offsets are relative to the start of the data region. Each entry's
// bytes are a complete sealpack stream with its own integrity footer, so
// a single file can be read and verified without touching the others.
//
// Create an archive:
//
//	entries, err := archive.Pack(ctx, w, []archive.File{
//	    {Path: "a.txt", Data: a},
//	    {Path: "dir/b.bin", Data: b},
//	})
//
// Read one file back:
//
//	r, err := archive.Open(src)
//	if err != nil {
//	    return err
//	}
//	content, err := r.ReadFile("dir/b.bin")
package archive
