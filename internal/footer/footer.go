// Package footer computes and checks the 32-byte BLAKE3 digest that
// terminates every encoded stream.
package footer

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the length of the footer in bytes.
const Size = 32

var (
	// ErrShort is returned for streams too short to hold a footer.
	ErrShort = errors.New("footer: stream shorter than footer")

	// ErrMismatch is returned when the stored digest does not match the payload.
	ErrMismatch = errors.New("footer: digest mismatch")
)

// Digest is a BLAKE3-256 digest.
type Digest [Size]byte

// Key selects BLAKE3 keyed mode. A nil *Key means plain BLAKE3.
type Key [32]byte

// Sum returns the digest of payload under key.
func Sum(key *Key, payload []byte) Digest {
	if key == nil {
		return blake3.Sum256(payload)
	}
	// NewKeyed only fails for keys that are not 32 bytes long.
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("footer: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(payload)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Append appends the digest of payload to payload and returns the
// resulting stream.
func Append(key *Key, payload []byte) []byte {
	d := Sum(key, payload)
	return append(payload, d[:]...)
}

// Split separates a stream into payload and stored digest without
// checking it.
func Split(stream []byte) (payload []byte, stored Digest, err error) {
	if len(stream) < Size {
		return nil, stored, fmt.Errorf("%w: %d bytes", ErrShort, len(stream))
	}
	n := len(stream) - Size
	copy(stored[:], stream[n:])
	return stream[:n:n], stored, nil
}

// Verify checks the footer of stream and returns the payload.
func Verify(key *Key, stream []byte) ([]byte, error) {
	payload, stored, err := Split(stream)
	if err != nil {
		return nil, err
	}
	got := Sum(key, payload)
	if subtle.ConstantTimeCompare(got[:], stored[:]) != 1 {
		return nil, ErrMismatch
	}
	return payload, nil
}
