// Package sealpack provides a loss-less block codec tuned for fast
// decoding of small and medium inputs.
//
// A buffer is split into chunks that are encoded in parallel. Each chunk
// goes through a run-length transform and a length-limited canonical
// Huffman code, falling back to raw storage when that is not smaller.
// The encoded chunks are gathered in order and sealed with a 32-byte
// BLAKE3 digest, which Decode checks before doing any entropy decoding.
//
// Stream layout:
//
//	payload := uvarint(totalLen) | uvarint(chunkCount) | { uvarint(frameLen) | frame }...
//	stream  := payload | blake3(payload)
//
// Round trip:
//
//	enc, err := sealpack.Encode(data)
//	if err != nil {
//	    return err
//	}
//	dec, err := sealpack.Decode(enc)
//
// The [archive] subpackage packs many files into one container of such
// streams.
package sealpack
