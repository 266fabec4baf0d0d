// Package http reads archives over HTTP range requests.
//
// A Source satisfies archive.ByteSource, so a remote archive can be
// listed, checked or partially extracted without downloading it:
//
//	src, err := http.NewSource(ctx, "https://example.com/data.sealpak")
//	r, err := archive.Open(src)
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync/atomic"
)

var (
	// ErrRangeUnsupported is returned when the server ignores Range.
	ErrRangeUnsupported = errors.New("http: range requests not supported")

	// ErrChanged is returned when the remote content no longer matches
	// the version probed by NewSource.
	ErrChanged = errors.New("http: remote content changed")
)

// Source implements io.ReaderAt and Size over HTTP range requests.
//
// Every read after the probe is pinned to the probed ETag or
// Last-Modified value, so a replaced archive fails with ErrChanged
// instead of returning mixed content.
type Source struct {
	ctx          context.Context
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	size         int64
	etag         string
	lastModified string
	requests     atomic.Int64
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithHeaders merges headers into each request, replacing existing
// values for the same keys.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if len(headers) == 0 {
			return
		}
		if s.headers == nil {
			s.headers = make(nethttp.Header, len(headers))
		}
		for k, v := range headers {
			s.headers[nethttp.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
}

// NewSource probes url for its size and version. ctx bounds the probe
// and every later read.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}

	if err := s.probe(); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// Version returns the validator reads are pinned to: the ETag, or
// Last-Modified when the server sent no ETag. It is empty when the
// server sent neither.
func (s *Source) Version() string {
	if s.etag != "" {
		return s.etag
	}
	return s.lastModified
}

// Requests returns the number of HTTP requests sent so far.
func (s *Source) Requests() int64 {
	return s.requests.Load()
}

// ReadAt reads len(p) bytes at off with a single range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("http: read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if want > s.size-off {
		want = s.size - off
	}

	resp, err := s.get(off, off+want-1)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusPreconditionFailed:
		return 0, fmt.Errorf("%w: %s", ErrChanged, s.url)
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("http: range request failed: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// probe learns the size and version from a one-byte range request.
func (s *Source) probe() error {
	resp, err := s.get(0, 0)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		// Empty content: the server reports the size in Content-Range.
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("http: range probe failed: %s", resp.Status)
	}

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return nil
}

func (s *Source) get(first, last int64) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, nethttp.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	} else if s.lastModified != "" {
		req.Header.Set("If-Unmodified-Since", s.lastModified)
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(first, 10)+"-"+strconv.FormatInt(last, 10))

	s.requests.Add(1)
	return s.client.Do(req)
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseContentRange returns the complete length from a Content-Range
// value such as "bytes 0-0/1234" or "bytes */0".
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	return size, nil
}
