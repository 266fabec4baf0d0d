//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sealpack/sealpack/archive"
	"github.com/sealpack/sealpack/internal/testutil"
	"github.com/sealpack/sealpack/registry"
)

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the
// container on first use.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

func newTestClient(tb testing.TB, opts ...registry.Option) *registry.Client {
	tb.Helper()
	return registry.New(append([]registry.Option{registry.WithPlainHTTP(true)}, opts...)...)
}

// testRef returns a reference unique to the calling test.
func testRef(addr, name, tag string) string {
	return fmt.Sprintf("%s/test/%s:%s", addr, name, tag)
}

var testFiles = []archive.File{
	{Path: "hello.txt", Data: []byte("Hello, World!")},
	{Path: "docs/readme.md", Data: []byte("# Test Archive\n\nThis is a test.")},
	{Path: "data/words.txt", Data: testutil.Text(256 << 10)},
	{Path: "data/skewed.bin", Data: testutil.Skewed(128 << 10)},
	{Path: "data/noise.bin", Data: testutil.Random(64<<10, 3)},
}

// packArchive packs files and opens the result.
func packArchive(tb testing.TB, files []archive.File) ([]byte, *archive.Reader) {
	tb.Helper()

	var buf bytes.Buffer
	_, err := archive.Pack(context.Background(), &buf, files)
	require.NoError(tb, err)

	r, err := archive.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(tb, err)
	return buf.Bytes(), r
}
