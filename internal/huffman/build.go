package huffman

import (
	"slices"

	"github.com/icza/huffman"
)

// Build returns code lengths for the given symbol frequencies.
//
// The optimal code comes from a Huffman tree over the used symbols. A
// block with a single distinct byte gets a one-bit code so the decoder
// always consumes input. If the tree is deeper than MaxCodeLen the
// lengths are limited (see limitLengths). A histogram with no used
// symbols yields an all-zero table.
func Build(hist *[NumSymbols]uint32) Lengths {
	var lens Lengths

	var nodes [NumSymbols]*huffman.Node
	leaves := make([]*huffman.Node, 0, NumSymbols)
	for sym, c := range hist {
		if c == 0 {
			continue
		}
		n := &huffman.Node{Value: huffman.ValueType(sym), Count: int(c)}
		nodes[sym] = n
		leaves = append(leaves, n)
	}

	switch len(leaves) {
	case 0:
		return lens
	case 1:
		lens[leaves[0].Value] = 1
		return lens
	}

	// Build reorders leaves; depths are read back through nodes.
	huffman.Build(leaves)

	deepest := 0
	depths := make([]int, NumSymbols)
	for sym, n := range nodes {
		if n == nil {
			continue
		}
		_, depth := n.Code()
		depths[sym] = int(depth)
		deepest = max(deepest, int(depth))
	}

	if deepest <= MaxCodeLen {
		for sym, d := range depths {
			lens[sym] = uint8(d)
		}
		return lens
	}
	limitLengths(&lens, depths, hist)
	return lens
}

// limitLengths clamps depths to MaxCodeLen and repairs the Kraft sum.
//
// Every depth above the limit is moved to MaxCodeLen, which
// oversubscribes the code space. While it is oversubscribed one
// max-length leaf is removed and the deepest shorter leaf is split into
// two leaves one level down; each step lowers the sum by exactly one
// unit of 2^-MaxCodeLen. The resulting per-length counts are handed out
// to symbols in descending frequency order, ties by ascending symbol.
func limitLengths(lens *Lengths, depths []int, hist *[NumSymbols]uint32) {
	var counts [MaxCodeLen + 1]int
	order := make([]int, 0, NumSymbols)
	for sym, d := range depths {
		if d == 0 {
			continue
		}
		counts[min(d, MaxCodeLen)]++
		order = append(order, sym)
	}

	total := 0
	for n := 1; n <= MaxCodeLen; n++ {
		total += counts[n] << (MaxCodeLen - n)
	}
	for total > 1<<MaxCodeLen {
		counts[MaxCodeLen]--
		for n := MaxCodeLen - 1; n > 0; n-- {
			if counts[n] != 0 {
				counts[n]--
				counts[n+1] += 2
				break
			}
		}
		total--
	}

	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case hist[a] > hist[b]:
			return -1
		case hist[a] < hist[b]:
			return 1
		default:
			return a - b
		}
	})

	*lens = Lengths{}
	idx := 0
	for n := 1; n <= MaxCodeLen; n++ {
		for range counts[n] {
			lens[order[idx]] = uint8(n)
			idx++
		}
	}
}
