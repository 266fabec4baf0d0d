package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealpack/sealpack/internal/native"
	"github.com/sealpack/sealpack/internal/testutil"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin []byte, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, bytes.NewReader(stdin), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

func TestEncodeDecodeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	enc := filepath.Join(dir, "in.sp")
	out := filepath.Join(dir, "out.txt")
	data := testutil.Text(200 << 10)
	require.NoError(t, os.WriteFile(in, data, 0o600))

	res := runCLI(t, nil, "--chunk-size", "16KiB", "encode", "-i", in, "-o", enc)
	require.NoError(t, res.err, res.stderr)
	res = runCLI(t, nil, "decode", "-i", enc, "-o", out)
	require.NoError(t, res.err, res.stderr)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	res = runCLI(t, nil, "fsck", enc)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "ok")
	assert.Contains(t, res.stdout, "chunks=13")
}

func TestEncodeDecodeStdio(t *testing.T) {
	t.Parallel()

	data := []byte("standard streams round trip")
	enc := runCLI(t, data, "encode")
	require.NoError(t, enc.err)
	dec := runCLI(t, []byte(enc.stdout), "decode")
	require.NoError(t, dec.err)
	assert.Equal(t, string(data), dec.stdout)
}

func TestDecodeCorruptStream(t *testing.T) {
	t.Parallel()

	enc := runCLI(t, []byte("some data to protect"), "encode")
	require.NoError(t, enc.err)
	stream := []byte(enc.stdout)
	stream[0] ^= 0xFF

	res := runCLI(t, stream, "decode")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "integrity")

	path := filepath.Join(t.TempDir(), "bad.sp")
	require.NoError(t, os.WriteFile(path, stream, 0o600))
	res = runCLI(t, nil, "fsck", path)
	assert.Equal(t, 1, exitCode(res.err))
	assert.Contains(t, res.stdout, "FAIL")
}

func TestArchiveCommands(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	files := map[string][]byte{
		"a.txt":       []byte("alpha"),
		"docs/b.md":   testutil.Text(10_000),
		"docs/c/d.go": []byte("package d\n"),
	}
	testutil.WriteFiles(t, src, files)
	arch := filepath.Join(t.TempDir(), "test.sealpak")

	res := runCLI(t, nil, "--workers", "2", "pack", "-o", arch, "--root", src)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "packed 3 files")

	res = runCLI(t, nil, "list", arch)
	require.NoError(t, res.err)
	for name := range files {
		assert.Contains(t, res.stdout, name)
	}

	res = runCLI(t, nil, "cat", arch, "docs/c/d.go")
	require.NoError(t, res.err)
	assert.Equal(t, "package d\n", res.stdout)

	res = runCLI(t, nil, "cat", arch, "missing")
	require.Error(t, res.err)

	dest := t.TempDir()
	res = runCLI(t, nil, "unpack", arch, "-d", dest)
	require.NoError(t, res.err, res.stderr)
	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}

	res = runCLI(t, nil, "fsck", arch)
	require.NoError(t, res.err)
	assert.Equal(t, 3, strings.Count(res.stdout, "ok "))
	assert.Contains(t, res.stdout, "sha256:")
}

func TestFsckCorruptArchive(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFiles(t, src, map[string][]byte{"x": testutil.Text(5000), "y": []byte("why")})
	arch := filepath.Join(t.TempDir(), "bad.sealpak")
	require.NoError(t, runCLI(t, nil, "pack", "-o", arch, "--root", src).err)

	data, err := os.ReadFile(arch)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01 // last byte of the last entry's footer
	require.NoError(t, os.WriteFile(arch, data, 0o600))

	res := runCLI(t, nil, "fsck", arch)
	assert.Equal(t, 1, exitCode(res.err))
	assert.Contains(t, res.stdout, "FAIL  y")
	assert.Contains(t, res.stdout, "ok    x")
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sealpack.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 2\nchunk_size: 4KiB\nlog_level: debug\n"), 0o600))

	res := runCLI(t, []byte("configured"), "--config", cfgPath, "encode")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "level=INFO")

	res = runCLI(t, []byte("quiet"), "--config", cfgPath, "--log-level", "error", "encode")
	require.NoError(t, res.err)
	assert.Empty(t, res.stderr)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	dir := t.TempDir()
	tests := map[string]string{
		"negative workers": "workers: -1\n",
		"bad chunk size":   "chunk_size: lots\n",
		"zero chunk size":  "chunk_size: 0B\n",
		"bad level":        "log_level: loud\n",
		"not yaml":         "workers: [\n",
		"password only":    "registry:\n  password: hunter2\n",
	}
	for name, content := range tests {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLicenseGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gated := filepath.Join(dir, "gated.yaml")
	require.NoError(t, os.WriteFile(gated, []byte("require_license: true\nlicense_key: abc\n"), 0o600))
	licensed := filepath.Join(dir, "licensed.yaml")
	require.NoError(t, os.WriteFile(licensed,
		[]byte("require_license: true\nlicense_key: abc\nlicense_secret: s3cret\n"), 0o600))

	res := runCLI(t, []byte("data"), "--config", gated, "encode")
	if os.Getenv(native.SecretEnv) == "" {
		assert.Equal(t, int(native.LicenseDenied), exitCode(res.err))
	}

	res = runCLI(t, []byte("data"), "--config", licensed, "encode")
	assert.NoError(t, res.err)
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		{},
		{"frobnicate"},
		{"pack"},
		{"list"},
		{"cat", "only-archive"},
		{"encode", "extra"},
		{"--chunk-size", "huge", "encode"},
		{"--no-such-flag"},
		{"push", "only-archive"},
		{"pull", "localhost:5000/acme/assets:v1"},
	}
	for _, args := range tests {
		res := runCLI(t, nil, args...)
		assert.Equal(t, 2, exitCode(res.err), "%v", args)
	}

	assert.NoError(t, runCLI(t, nil, "--help").err)
}

func TestBench(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "bench", "--size", "256KiB")
	require.NoError(t, res.err, res.stderr)
	for _, name := range []string{"sealpack", "zstd", "lz4"} {
		assert.Contains(t, res.stdout, name)
	}

	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, testutil.Skewed(64<<10), 0o600))
	res = runCLI(t, nil, "bench", "-f", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "input 64 KiB")
}

func TestGenerateText(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 1000} {
		assert.Len(t, generateText(n), n)
	}
	assert.Equal(t, generateText(500), generateText(500))
}
