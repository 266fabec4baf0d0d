package archive

import (
	"context"
	_ "crypto/sha256" // registers the digest.Canonical hash
	"sync"

	"github.com/opencontainers/go-digest"
)

// Result is the outcome of checking one entry.
type Result struct {
	// Path is the entry's path.
	Path string

	// Size is the entry's stream size, footer included.
	Size uint64

	// DecodedSize is the size of the decoded content. Zero on failure.
	DecodedSize int

	// Digest is the SHA-256 digest of the decoded content. Empty on failure.
	Digest digest.Digest

	// Err is nil if the entry decoded and verified.
	Err error
}

// Report holds one Result per entry, in archive order.
type Report struct {
	Results []Result
}

// OK reports whether every entry passed.
func (r *Report) OK() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Fsck decodes and verifies every entry.
//
// A failing entry is recorded in the report and checking continues with
// the next one. The returned error is only non-nil if ctx is cancelled,
// in which case the report holds the results gathered so far.
func (r *Reader) Fsck(ctx context.Context) (*Report, error) {
	report := &Report{Results: make([]Result, len(r.entries))}
	for i, e := range r.entries {
		report.Results[i] = Result{Path: e.Path, Size: e.Size}
	}

	s := &reportSink{report: report}
	err := r.process(ctx, StageChecking, s)

	failed := len(report.Failures())
	r.cfg.log().Info("fsck complete", "entries", len(r.entries), "failed", failed)
	return report, err
}

// reportSink records results instead of keeping content.
type reportSink struct {
	mu     sync.Mutex
	report *Report
}

func (s *reportSink) shouldProcess(Entry) bool {
	return true
}

func (s *reportSink) put(index int, _ Entry, content []byte) error {
	d := digest.FromBytes(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Results[index].DecodedSize = len(content)
	s.report.Results[index].Digest = d
	return nil
}

func (s *reportSink) fail(index int, _ Entry, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Results[index].Err = err
	return nil
}
