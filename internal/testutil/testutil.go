// Package testutil provides deterministic test data and in-memory byte
// sources shared by the sealpack tests.
package testutil

import (
	"bytes"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data  []byte
	reads atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls so far.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// Text returns n bytes of repetitive English-like text.
func Text(n int) []byte {
	const corpus = "It was the best of times, it was the worst of times, it was the age of wisdom, " +
		"it was the age of foolishness, it was the epoch of belief, it was the epoch of incredulity. "
	return fill(n, []byte(corpus))
}

// Random returns n bytes of seeded pseudo-random data.
func Random(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Uint32())
	}
	return b
}

// Runs returns n bytes made of runs of a few values with seeded lengths.
func Runs(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	b := make([]byte, 0, n)
	for len(b) < n {
		run := min(rng.IntN(600)+1, n-len(b))
		b = append(b, bytes.Repeat([]byte{byte(rng.IntN(6))}, run)...)
	}
	return b
}

// Skewed returns n bytes whose symbol frequencies roughly follow a
// Fibonacci sequence, which drives an unconstrained Huffman tree far
// beyond 15 levels.
func Skewed(n int) []byte {
	weights := make([]int, 32)
	a, b := 1, 1
	for i := range weights {
		weights[i] = a
		a, b = b, a+b
	}
	total := 0
	for _, w := range weights {
		total += w
	}

	out := make([]byte, 0, n)
	for sym := len(weights) - 1; sym >= 0; sym-- {
		count := max(weights[sym]*n/total, 1)
		for range count {
			if len(out) == n {
				return out
			}
			out = append(out, byte(sym))
		}
	}
	return fill(n, out)
}

func fill(n int, pattern []byte) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += len(pattern) {
		copy(out[i:], pattern)
	}
	return out
}

// WriteFiles creates files under dir from a map of slash-separated
// relative paths to contents.
func WriteFiles(tb testing.TB, dir string, files map[string][]byte) {
	tb.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			tb.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
}
