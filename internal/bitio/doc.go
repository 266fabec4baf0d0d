// Package bitio provides the MSB-first bit writer and reader used by the
// Huffman stage.
//
// Bits are packed most-significant-first: the first bit written is bit 7
// of the first byte. The final byte is zero-padded. The reader does not
// know where the meaningful bits stop; callers bound decoding by symbol
// count and use Remaining only to detect truncation.
package bitio
