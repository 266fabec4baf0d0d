// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import "math"

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// CheckLimit returns overflowErr when size exceeds limit.
// A limit of 0 disables the check.
func CheckLimit(size, limit uint64, overflowErr error) error {
	if limit > 0 && size > limit {
		return overflowErr
	}
	return nil
}

// MulFits reports whether a*b fits in a uint64.
func MulFits(a, b uint64) bool {
	if a == 0 || b == 0 {
		return true
	}
	return a <= math.MaxUint64/b
}
