package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sealpack/sealpack/archive"
	sealhttp "github.com/sealpack/sealpack/http"
)

// newHTTPSource serves data (for --data-url=local) or fetches the given
// URL, optionally throttled.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPSource(cfg config, data []byte) (archive.ByteSource, func(), error) {
	if cfg.dataURL == "" {
		return nil, nil, errors.New("data-url is required for HTTP source")
	}

	url := cfg.dataURL
	cleanup := func() {}
	if cfg.dataURL == "local" {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			w.Header().Set("ETag", `"profiler"`)
			nethttp.ServeContent(w, r, "archive", time.Time{}, bytes.NewReader(data))
		}))
		url = server.URL
		cleanup = server.Close
	}

	source, err := sealhttp.NewSource(context.Background(), url, sealhttp.WithClient(newHTTPClient(cfg)))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return source, cleanup, nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.dataHTTPLatency > 0 || cfg.dataHTTPBPS > 0 {
		transport = &throttleRoundTripper{
			base:           transport,
			latency:        cfg.dataHTTPLatency,
			bytesPerSecond: cfg.dataHTTPBPS,
		}
	}
	return &nethttp.Client{Transport: transport}
}

// throttleRoundTripper simulates a slow link.
type throttleRoundTripper struct {
	base           nethttp.RoundTripper
	latency        time.Duration
	bytesPerSecond int64
}

func (rt *throttleRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if rt.latency > 0 {
		time.Sleep(rt.latency)
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.bytesPerSecond > 0 && resp.Body != nil {
		resp.Body = &throttledBody{
			rc:             resp.Body,
			bytesPerSecond: rt.bytesPerSecond,
			start:          time.Now(),
		}
	}
	return resp, nil
}

type throttledBody struct {
	rc             io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	readBytes      int64
}

func (tb *throttledBody) Read(p []byte) (int, error) {
	n, err := tb.rc.Read(p)
	if n > 0 {
		tb.readBytes += int64(n)
		expected := time.Duration(float64(tb.readBytes) / float64(tb.bytesPerSecond) * float64(time.Second))
		if elapsed := time.Since(tb.start); expected > elapsed {
			time.Sleep(expected - elapsed)
		}
	}
	return n, err
}

func (tb *throttledBody) Close() error {
	return tb.rc.Close()
}

// parseBytesPerSecond accepts sizes like "10MB/s", "512KiBps" or "1GB".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	for _, suffix := range []string{"/s", "ps"} {
		text = strings.TrimSuffix(text, suffix)
	}
	n, err := humanize.ParseBytes(text)
	if err != nil || n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return int64(n), nil
}
