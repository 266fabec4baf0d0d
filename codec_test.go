package sealpack

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealpack/sealpack/internal/batch"
	"github.com/sealpack/sealpack/internal/footer"
	"github.com/sealpack/sealpack/internal/testutil"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "single byte", data: []byte{0x00}},
		{name: "repeated", data: bytes.Repeat([]byte{'A'}, 1<<20)},
		{name: "text", data: testutil.Text(300 << 10)},
		{name: "random", data: testutil.Random(200<<10, 42)},
		{name: "runs", data: testutil.Runs(150<<10, 7)},
		{name: "skewed", data: testutil.Skewed(128 << 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			enc, err := Encode(tt.data)
			require.NoError(t, err)

			dec, err := Decode(enc)
			require.NoError(t, err)
			require.Len(t, dec, len(tt.data))
			assert.True(t, bytes.Equal(tt.data, dec), "decoded data differs")
		})
	}
}

func TestRepeatedCompresses(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{'A'}, 1<<20)
	enc, err := Encode(data)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(data)/100)
}

func TestRandomStaysNearRaw(t *testing.T) {
	t.Parallel()

	data := testutil.Random(256<<10, 9)
	enc, err := Encode(data)
	require.NoError(t, err)

	info, err := Inspect(enc)
	require.NoError(t, err)
	assert.Equal(t, info.Chunks, info.RawChunks, "random chunks should be stored raw")
	assert.Less(t, len(enc), len(data)+len(data)/100)
}

func TestEmptyStreamLayout(t *testing.T) {
	t.Parallel()

	enc, err := Encode(nil)
	require.NoError(t, err)
	assert.Len(t, enc, 2+FooterSize)
	assert.Equal(t, []byte{0, 0}, enc[:2])
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	data := testutil.Text(1 << 20)
	want, err := Encode(data, WithWorkers(1))
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 16} {
		got, err := Encode(data, WithWorkers(workers))
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}

	pool := NewPool(4)
	defer pool.Close()
	got, err := Encode(data, WithPool(pool))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	dec, err := Decode(got, WithPool(pool))
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestChunkSize(t *testing.T) {
	t.Parallel()

	data := testutil.Text(100 << 10)
	for _, size := range []int{0, 1, 1000, 4096, 1 << 20} {
		enc, err := Encode(data, WithChunkSize(size))
		require.NoError(t, err)

		info, err := Inspect(enc)
		require.NoError(t, err)
		switch {
		case size <= 0 || size >= len(data):
			assert.Equal(t, 1, info.Chunks)
		default:
			assert.Equal(t, (len(data)+size-1)/size, info.Chunks)
		}
		assert.Equal(t, len(data), info.DecodedSize)

		// Decode does not depend on the encoder's chunk size.
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, data, dec)
	}
}

func TestDecodeDetectsBitFlips(t *testing.T) {
	t.Parallel()

	enc, err := Encode(testutil.Text(10 << 10))
	require.NoError(t, err)

	for _, pos := range []int{0, 1, len(enc) / 2, len(enc) - FooterSize - 1, len(enc) - 1} {
		corrupt := append([]byte(nil), enc...)
		corrupt[pos] ^= 0x10
		_, err := Decode(corrupt)
		assert.ErrorIs(t, err, ErrIntegrity, "flip at %d", pos)
		assert.ErrorIs(t, Verify(corrupt), ErrIntegrity, "flip at %d", pos)
	}
	assert.NoError(t, Verify(enc))
}

func TestDecodeShortStream(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, FooterSize-1))
	assert.ErrorIs(t, err, ErrIntegrity)
	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestKeyedFooter(t *testing.T) {
	t.Parallel()

	var key [32]byte
	copy(key[:], "an example very secret key 32 b")
	data := testutil.Text(5000)

	enc, err := Encode(data, WithKey(key))
	require.NoError(t, err)

	_, err = Decode(enc)
	assert.ErrorIs(t, err, ErrIntegrity, "unkeyed decode of keyed stream")

	dec, err := Decode(enc, WithKey(key))
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

// seal builds a stream from a hand-made payload with a valid footer.
func seal(payload []byte) []byte {
	return footer.Append(nil, payload)
}

func payloadOf(t *testing.T, stream []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(stream), FooterSize)
	return append([]byte(nil), stream[:len(stream)-FooterSize]...)
}

func TestDecodeStructuralErrors(t *testing.T) {
	t.Parallel()

	enc, err := Encode([]byte("abcdefgh"), WithChunkSize(4))
	require.NoError(t, err)
	good := payloadOf(t, enc)
	// good = total(8) count(2) len(6) frame(6) len(6) frame(6)
	require.Equal(t, []byte{8, 2, 6}, good[:3])

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{
			name:    "count too high",
			payload: append([]byte{8, 3}, good[2:]...),
			wantErr: ErrDecode,
		},
		{
			name:    "count too low",
			payload: append([]byte{8, 1}, good[2:]...),
			wantErr: ErrDecode,
		},
		{
			name:    "total mismatch",
			payload: append([]byte{9, 2}, good[2:]...),
			wantErr: ErrDecode,
		},
		{
			name:    "total exceeded by chunks",
			payload: append([]byte{7, 2}, good[2:]...),
			wantErr: ErrDecode,
		},
		{
			name:    "empty payload",
			payload: nil,
			wantErr: ErrDecode,
		},
		{
			name:    "unknown frame kind",
			payload: []byte{1, 1, 3, 9, 1, 'x'},
			wantErr: ErrDecode,
		},
		{
			name:    "declared size over limit",
			payload: binary.AppendUvarint(nil, DefaultMaxDecodedSize+1),
			wantErr: ErrAlloc,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(seal(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeReportsChunkIndex(t *testing.T) {
	t.Parallel()

	// Second frame claims an unknown kind.
	payload := []byte{2, 2, 3, 0, 1, 'a', 3, 9, 1, 'b'}
	_, err := Decode(seal(payload))
	require.ErrorIs(t, err, ErrDecode)

	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Index)
}

func TestChunkPanicsKeepErrorKind(t *testing.T) {
	t.Parallel()

	pool := NewPool(2)
	t.Cleanup(pool.Close)

	_, err := batch.Run(pool, 4, func(i int) (int, error) {
		if i == 2 {
			panic("bad chunk")
		}
		return i, nil
	})
	require.ErrorIs(t, err, batch.ErrPanic)

	for _, kind := range []error{ErrEncode, ErrDecode} {
		got := classifyPanic(err, kind)
		require.ErrorIs(t, got, kind)
		require.ErrorIs(t, got, batch.ErrPanic)

		var ce *ChunkError
		require.ErrorAs(t, got, &ce)
		assert.Equal(t, 2, ce.Index)
	}

	assert.Same(t, ErrIntegrity, classifyPanic(ErrIntegrity, ErrDecode))
}

func TestMaxDecodedSize(t *testing.T) {
	t.Parallel()

	enc, err := Encode(make([]byte, 10000))
	require.NoError(t, err)

	_, err = Decode(enc, WithMaxDecodedSize(9999))
	assert.ErrorIs(t, err, ErrAlloc)

	dec, err := Decode(enc, WithMaxDecodedSize(0))
	require.NoError(t, err)
	assert.Len(t, dec, 10000)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	data := append(bytes.Repeat([]byte{'z'}, 100<<10), testutil.Random(64<<10, 3)...)
	enc, err := Encode(data)
	require.NoError(t, err)

	info, err := Inspect(enc)
	require.NoError(t, err)
	assert.Equal(t, len(data), info.DecodedSize)
	assert.Equal(t, len(enc), info.EncodedSize)
	assert.Equal(t, 3, info.Chunks)
	assert.Equal(t, 1, info.RawChunks)
	assert.Less(t, info.Ratio(), 1.0)

	assert.Zero(t, Info{}.Ratio())
}

func FuzzDecode(f *testing.F) {
	seed, _ := Encode(testutil.Text(2000), WithChunkSize(512))
	f.Add(seed[:len(seed)-FooterSize])
	f.Add([]byte{0, 0})
	f.Fuzz(func(t *testing.T, payload []byte) {
		_, _ = Decode(seal(payload), WithMaxDecodedSize(1<<20), WithWorkers(2))
	})
}
