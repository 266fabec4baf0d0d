// Command libsealpack builds the sealpack C library:
//
//	go build -buildmode=c-shared -o libsealpack.so ./cmd/libsealpack
//
// Buffers returned by sealpack_encode and sealpack_decode are allocated
// with malloc and must be released with sealpack_free.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/sealpack/sealpack/internal/native"
)

// cAllocator allocates from the C heap so callers own the result.
type cAllocator struct{}

func (cAllocator) Alloc(n uint) unsafe.Pointer {
	return C.malloc(C.size_t(n))
}

func (cAllocator) Free(p unsafe.Pointer) {
	C.free(p)
}

var boundary = native.New(cAllocator{})

//export sealpack_encode
func sealpack_encode(in *C.uint8_t, n C.size_t, out **C.uint8_t, outLen *C.size_t) C.int {
	return C.int(boundary.Encode(unsafe.Pointer(in), uint(n),
		(*unsafe.Pointer)(unsafe.Pointer(out)), (*uint)(unsafe.Pointer(outLen))))
}

//export sealpack_decode
func sealpack_decode(in *C.uint8_t, n C.size_t, out **C.uint8_t, outLen *C.size_t) C.int {
	return C.int(boundary.Decode(unsafe.Pointer(in), uint(n),
		(*unsafe.Pointer)(unsafe.Pointer(out)), (*uint)(unsafe.Pointer(outLen))))
}

//export sealpack_free
func sealpack_free(p unsafe.Pointer) {
	boundary.Release(p)
}

//export sealpack_set_license_secret
func sealpack_set_license_secret(secret *C.char) C.int {
	if secret == nil {
		return C.int(native.NullPointer)
	}
	boundary.SetLicenseSecret(C.GoString(secret))
	return C.int(native.OK)
}

//export sealpack_set_license_key
func sealpack_set_license_key(key *C.char) C.int {
	if key == nil {
		return C.int(native.NullPointer)
	}
	boundary.SetLicenseKey(C.GoString(key))
	return C.int(native.OK)
}

//export sealpack_require_license
func sealpack_require_license(enabled C.int) {
	if enabled != 0 {
		boundary.SetGate(native.RequireLicense)
		return
	}
	boundary.SetGate(nil)
}

func main() {}
