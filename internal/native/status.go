// Package native implements the C-ABI call boundary: encode and decode
// over pointer-and-length buffers, a release call, and optional license
// gating. Every call reports a Status instead of panicking.
package native

import (
	"errors"

	"github.com/sealpack/sealpack"
)

// Status is the integer result of a boundary call.
type Status int32

// Status codes returned across the boundary. The values are part of the
// ABI and must not change.
const (
	OK            Status = 0
	NullPointer   Status = 1
	EncodeFail    Status = 2
	DecodeFail    Status = 3
	IntegrityFail Status = 4
	AllocFail     Status = 5
	LicenseDenied Status = 6
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NullPointer:
		return "null pointer"
	case EncodeFail:
		return "encode failed"
	case DecodeFail:
		return "decode failed"
	case IntegrityFail:
		return "integrity check failed"
	case AllocFail:
		return "allocation failed"
	case LicenseDenied:
		return "license denied"
	default:
		return "unknown status"
	}
}

// StatusOf maps a codec error to a status. Errors that match no codec
// sentinel map to fallback.
func StatusOf(err error, fallback Status) Status {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrLicense):
		return LicenseDenied
	case errors.Is(err, sealpack.ErrIntegrity):
		return IntegrityFail
	case errors.Is(err, sealpack.ErrAlloc):
		return AllocFail
	case errors.Is(err, sealpack.ErrDecode):
		return DecodeFail
	case errors.Is(err, sealpack.ErrEncode):
		return EncodeFail
	default:
		return fallback
	}
}
