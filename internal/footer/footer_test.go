package footer

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumKnownVector(t *testing.T) {
	t.Parallel()

	// BLAKE3 of the empty input.
	want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	d := Sum(nil, nil)
	assert.Equal(t, want, hex.EncodeToString(d[:]))
}

func TestKeyedDiffers(t *testing.T) {
	t.Parallel()

	payload := []byte("payload")
	var k1, k2 Key
	k2[0] = 1

	plain := Sum(nil, payload)
	keyed1 := Sum(&k1, payload)
	keyed2 := Sum(&k2, payload)
	assert.NotEqual(t, plain, keyed1)
	assert.NotEqual(t, keyed1, keyed2)
	assert.Equal(t, keyed1, Sum(&k1, payload))
}

func TestAppendVerify(t *testing.T) {
	t.Parallel()

	var key Key
	copy(key[:], "0123456789abcdef0123456789abcdef")

	for _, k := range []*Key{nil, &key} {
		stream := Append(k, []byte("hello, world"))
		require.Len(t, stream, len("hello, world")+Size)

		payload, err := Verify(k, stream)
		require.NoError(t, err)
		assert.Equal(t, "hello, world", string(payload))
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	t.Parallel()

	stream := Append(nil, []byte("some payload bytes"))
	for i := range stream {
		corrupt := append([]byte(nil), stream...)
		corrupt[i] ^= 0x01
		_, err := Verify(nil, corrupt)
		assert.ErrorIs(t, err, ErrMismatch, "flip at byte %d", i)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	t.Parallel()

	var key Key
	key[31] = 0xAA
	stream := Append(&key, []byte("x"))
	_, err := Verify(nil, stream)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestSplitShort(t *testing.T) {
	t.Parallel()

	_, _, err := Split(make([]byte, Size-1))
	assert.ErrorIs(t, err, ErrShort)

	payload, err := Verify(nil, Append(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, payload)
}
