package native

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/internal/footer"
	"github.com/sealpack/sealpack/internal/testutil"
)

// countingAllocator hands out Go memory and tracks live buffers.
type countingAllocator struct {
	mu     sync.Mutex
	live   map[unsafe.Pointer][]byte
	allocs int
	frees  int
	fail   bool
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{live: make(map[unsafe.Pointer][]byte)}
}

func (a *countingAllocator) Alloc(n uint) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return nil
	}
	buf := make([]byte, n)
	p := unsafe.Pointer(&buf[0])
	a.live[p] = buf
	a.allocs++
	return p
}

func (a *countingAllocator) Free(p unsafe.Pointer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[p]; !ok {
		panic(fmt.Sprintf("free of unknown pointer %p", p))
	}
	delete(a.live, p)
	a.frees++
}

func (a *countingAllocator) outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func ptr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		// A valid pointer to zero bytes.
		var z [1]byte
		return unsafe.Pointer(&z[0])
	}
	return unsafe.Pointer(&b[0])
}

func encode(t *testing.T, b *Boundary, data []byte) ([]byte, unsafe.Pointer) {
	t.Helper()

	var out unsafe.Pointer
	var outLen uint
	require.Equal(t, OK, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	require.NotNil(t, out)
	return unsafe.Slice((*byte)(out), outLen), out
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		{},
		{'x'},
		testutil.Text(300 << 10),
		testutil.Random(10_000, 4),
	} {
		alloc := newCountingAllocator()
		b := New(alloc)

		stream, encPtr := encode(t, b, data)
		want, err := sealpack.Encode(data)
		require.NoError(t, err)
		assert.Equal(t, want, stream, "boundary output matches the library")

		var out unsafe.Pointer
		var outLen uint
		require.Equal(t, OK, b.Decode(encPtr, uint(len(stream)), &out, &outLen))
		require.NotNil(t, out, "zero-length results still get a buffer")
		assert.Equal(t, uint(len(data)), outLen)
		assert.Equal(t, data, unsafe.Slice((*byte)(out), outLen))

		b.Release(encPtr)
		b.Release(out)
		b.Release(nil)
		assert.Zero(t, alloc.outstanding())
		assert.Equal(t, 2, alloc.allocs)
		assert.Equal(t, 2, alloc.frees)
	}
}

func TestNullPointers(t *testing.T) {
	t.Parallel()

	alloc := newCountingAllocator()
	b := New(alloc)
	data := []byte("abc")
	var out unsafe.Pointer
	var outLen uint

	assert.Equal(t, NullPointer, b.Encode(nil, 0, &out, &outLen))
	assert.Equal(t, NullPointer, b.Encode(ptr(data), 3, nil, &outLen))
	assert.Equal(t, NullPointer, b.Encode(ptr(data), 3, &out, nil))
	assert.Equal(t, NullPointer, b.Decode(nil, 0, &out, &outLen))
	assert.Equal(t, NullPointer, b.Decode(ptr(data), 3, nil, nil))
	assert.Nil(t, out)
	assert.Zero(t, alloc.allocs)
}

func TestDecodeStatuses(t *testing.T) {
	t.Parallel()

	alloc := newCountingAllocator()
	b := New(alloc)
	stream, encPtr := encode(t, b, testutil.Text(10_000))
	defer b.Release(encPtr)

	flipped := append([]byte(nil), stream...)
	flipped[5] ^= 0x10

	// A valid footer over a payload that does not parse.
	garbage := footer.Append(nil, []byte{0x05, 0x01, 0x09})

	tests := []struct {
		name string
		in   []byte
		want Status
	}{
		{name: "bit flip", in: flipped, want: IntegrityFail},
		{name: "short", in: []byte{1, 2, 3}, want: IntegrityFail},
		{name: "empty", in: []byte{}, want: IntegrityFail},
		{name: "bad payload", in: garbage, want: DecodeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out unsafe.Pointer
			var outLen uint
			assert.Equal(t, tt.want, b.Decode(ptr(tt.in), uint(len(tt.in)), &out, &outLen))
			assert.Nil(t, out)
			assert.Zero(t, outLen)
		})
	}
	assert.Equal(t, 1, alloc.outstanding(), "failed calls allocate nothing")
}

func TestAllocFailure(t *testing.T) {
	t.Parallel()

	alloc := newCountingAllocator()
	alloc.fail = true
	b := New(alloc)

	data := []byte("hello")
	var out unsafe.Pointer
	var outLen uint
	assert.Equal(t, AllocFail, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	assert.Nil(t, out)
}

func TestDecodeSizeLimit(t *testing.T) {
	t.Parallel()

	alloc := newCountingAllocator()
	b := New(alloc, WithCodecOptions(sealpack.WithMaxDecodedSize(100)))
	stream, encPtr := encode(t, b, testutil.Text(1000))
	defer b.Release(encPtr)

	var out unsafe.Pointer
	var outLen uint
	assert.Equal(t, AllocFail, b.Decode(encPtr, uint(len(stream)), &out, &outLen))
}

func TestLicenseGate(t *testing.T) {
	t.Parallel()

	env := map[string]string{}
	var mu sync.Mutex
	getenv := func(k string) string {
		mu.Lock()
		defer mu.Unlock()
		return env[k]
	}

	alloc := newCountingAllocator()
	b := New(alloc, WithGate(RequireLicense), WithGetenv(getenv))
	data := []byte("gated")
	var out unsafe.Pointer
	var outLen uint

	assert.Equal(t, LicenseDenied, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	assert.Equal(t, LicenseDenied, b.Decode(ptr(data), uint(len(data)), &out, &outLen))

	b.SetLicenseKey("key")
	assert.Equal(t, LicenseDenied, b.Encode(ptr(data), uint(len(data)), &out, &outLen), "secret still missing")

	mu.Lock()
	env[SecretEnv] = "from-env"
	mu.Unlock()
	require.Equal(t, OK, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	b.Release(out)

	mu.Lock()
	delete(env, SecretEnv)
	mu.Unlock()
	b.SetLicenseSecret("explicit")
	require.Equal(t, OK, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	b.Release(out)

	b.SetGate(nil)
	b.SetLicenseKey("")
	require.Equal(t, OK, b.Encode(ptr(data), uint(len(data)), &out, &outLen))
	b.Release(out)
	assert.Zero(t, alloc.outstanding())
}

func TestGateSeesLicense(t *testing.T) {
	t.Parallel()

	var seen License
	b := New(newCountingAllocator(), WithGetenv(func(string) string { return "env" }))
	b.SetGate(func(l License) error {
		seen = l
		return errors.New("nope")
	})
	b.SetLicenseKey("k")

	data := []byte("x")
	var out unsafe.Pointer
	var outLen uint
	assert.Equal(t, LicenseDenied, b.Encode(ptr(data), 1, &out, &outLen))
	assert.Equal(t, License{Secret: "env", Key: "k"}, seen)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Status
	}{
		{err: nil, want: OK},
		{err: fmt.Errorf("x: %w", sealpack.ErrIntegrity), want: IntegrityFail},
		{err: fmt.Errorf("x: %w", sealpack.ErrAlloc), want: AllocFail},
		{err: &sealpack.ChunkError{Index: 3, Err: sealpack.ErrDecode}, want: DecodeFail},
		{err: sealpack.ErrEncode, want: EncodeFail},
		{err: RequireLicense(License{}), want: LicenseDenied},
		{err: errors.New("other"), want: DecodeFail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err, DecodeFail), "%v", tt.err)
	}
	assert.Equal(t, "integrity check failed", IntegrityFail.String())
	assert.Equal(t, "unknown status", Status(42).String())
}

func TestConcurrentCalls(t *testing.T) {
	t.Parallel()

	alloc := newCountingAllocator()
	b := New(alloc)
	data := testutil.Skewed(50_000)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var enc, dec unsafe.Pointer
			var encLen, decLen uint
			if !assert.Equal(t, OK, b.Encode(ptr(data), uint(len(data)), &enc, &encLen)) {
				return
			}
			defer b.Release(enc)
			if !assert.Equal(t, OK, b.Decode(enc, encLen, &dec, &decLen)) {
				return
			}
			defer b.Release(dec)
			assert.Equal(t, data, unsafe.Slice((*byte)(dec), decLen))
		}()
	}
	wg.Wait()
	assert.Zero(t, alloc.outstanding())
}
