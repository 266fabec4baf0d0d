package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/archive"
	sealhttp "github.com/sealpack/sealpack/http"
	"github.com/sealpack/sealpack/internal/baseline"
	"github.com/sealpack/sealpack/registry"
)

func newFlagSet(a *app, name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(a.stderr)
	return flags
}

func parseFlags(flags *pflag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return &exitError{code: 0}
		}
		return &exitError{code: 2, err: err}
	}
	return nil
}

func runEncode(_ context.Context, a *app, args []string) error {
	return transform(a, "encode", args, func(in []byte) ([]byte, error) {
		return sealpack.Encode(in, a.codecOpts...)
	})
}

func runDecode(_ context.Context, a *app, args []string) error {
	return transform(a, "decode", args, func(in []byte) ([]byte, error) {
		return sealpack.Decode(in, a.codecOpts...)
	})
}

func transform(a *app, name string, args []string, fn func([]byte) ([]byte, error)) error {
	var input, output string
	flags := newFlagSet(a, name)
	flags.StringVarP(&input, "input", "i", "-", "input file")
	flags.StringVarP(&output, "output", "o", "-", "output file")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return usageError("%s: unexpected argument %q", name, flags.Arg(0))
	}
	if err := a.allowed(); err != nil {
		return err
	}

	in, err := readInput(a, input)
	if err != nil {
		return err
	}
	out, err := fn(in)
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, input, err)
	}
	if err := writeOutput(a, output, out); err != nil {
		return err
	}
	a.logger.Info(name+" complete", "in", humanize.IBytes(uint64(len(in))), "out", humanize.IBytes(uint64(len(out))))
	return nil
}

func readInput(a *app, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path through a temporary file so a failed
// write never leaves a truncated result.
func writeOutput(a *app, path string, data []byte) error {
	if path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sealpack-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // output files are world-readable like cp
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	return os.Rename(tmpPath, path)
}

func runPack(ctx context.Context, a *app, args []string) error {
	var output, root string
	flags := newFlagSet(a, "pack")
	flags.StringVarP(&output, "output", "o", "", "archive to create")
	flags.StringVar(&root, "root", ".", "directory paths are relative to")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if output == "" {
		return usageError("pack: -o ARCHIVE is required")
	}

	var buf bytes.Buffer
	entries, err := archive.PackPaths(ctx, &buf, root, flags.Args(), a.archiveOpts()...)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if err := writeOutput(a, output, buf.Bytes()); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	fmt.Fprintf(a.stdout, "packed %d files into %s (%s)\n", len(entries), output, humanize.IBytes(uint64(buf.Len())))
	return nil
}

// ociScheme prefixes archive names that are registry references.
const ociScheme = "oci://"

// openArchive opens a local archive file, a remote one by URL, or one
// pushed to a registry.
func openArchive(ctx context.Context, a *app, name string, opts ...archive.Option) (*archive.Reader, func() error, error) {
	opts = a.archiveOpts(opts...)
	if ref, ok := strings.CutPrefix(name, ociScheme); ok {
		pullOpts := []registry.PullOption{registry.WithArchiveOptions(opts...)}
		if a.blocks != nil {
			pullOpts = append(pullOpts, registry.WithBlockCache(a.blocks))
		}
		r, err := a.registryClient(ref).Pull(ctx, ref, pullOpts...)
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		src, err := sealhttp.NewSource(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		var bs archive.ByteSource = src
		if a.blocks != nil && src.Version() != "" {
			if bs, err = a.blocks.Wrap(src, name+"@"+src.Version()); err != nil {
				return nil, nil, err
			}
		}
		r, err := archive.Open(bs, opts...)
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}
	rc, err := archive.OpenFile(name, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rc.Reader, rc.Close, nil
}

func runUnpack(ctx context.Context, a *app, args []string) error {
	var dir string
	var overwrite bool
	flags := newFlagSet(a, "unpack")
	flags.StringVarP(&dir, "dir", "d", ".", "destination directory")
	flags.BoolVar(&overwrite, "overwrite", false, "replace existing files")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usageError("unpack: expected ARCHIVE")
	}

	r, closeFn, err := openArchive(ctx, a, flags.Arg(0), archive.WithOverwrite(overwrite))
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck // read-only file
	return r.Unpack(ctx, dir)
}

func runList(ctx context.Context, a *app, args []string) error {
	flags := newFlagSet(a, "list")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usageError("list: expected ARCHIVE")
	}

	r, closeFn, err := openArchive(ctx, a, flags.Arg(0))
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck // read-only file

	w := bufio.NewWriter(a.stdout)
	for _, e := range r.Entries() {
		fmt.Fprintf(w, "%10s  %s\n", humanize.IBytes(e.Size), e.Path)
	}
	return w.Flush()
}

func runCat(ctx context.Context, a *app, args []string) error {
	flags := newFlagSet(a, "cat")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return usageError("cat: expected ARCHIVE PATH")
	}

	r, closeFn, err := openArchive(ctx, a, flags.Arg(0))
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck // read-only file

	content, err := r.ReadFile(flags.Arg(1))
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(content)
	return err
}

func runFsck(ctx context.Context, a *app, args []string) error {
	flags := newFlagSet(a, "fsck")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return usageError("fsck: expected FILE")
	}
	name := flags.Arg(0)

	isArchive, err := looksLikeArchive(name)
	if err != nil {
		return err
	}
	if !isArchive {
		return fsckStream(a, name)
	}

	r, closeFn, err := openArchive(ctx, a, name)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	defer closeFn() //nolint:errcheck // read-only file

	report, err := r.Fsck(ctx)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(a.stdout)
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "FAIL  %s: %v\n", res.Path, res.Err)
			continue
		}
		fmt.Fprintf(w, "ok    %s  %s  %s\n", res.Path, humanize.IBytes(uint64(res.DecodedSize)), res.Digest)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed := report.Failures(); len(failed) > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d entries failed", len(failed), len(report.Results))}
	}
	return nil
}

// looksLikeArchive reports whether name starts with the archive magic.
// URLs and registry references are always treated as archives.
func looksLikeArchive(name string) (bool, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") || strings.HasPrefix(name, ociScheme) {
		return true, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()

	magic := make([]byte, len(archive.Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return string(magic) == archive.Magic, nil
}

func fsckStream(a *app, name string) error {
	stream, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	info, err := sealpack.Inspect(stream, a.codecOpts...)
	if err == nil {
		_, err = sealpack.Decode(stream, a.codecOpts...)
	}
	if err != nil {
		fmt.Fprintf(a.stdout, "FAIL  %s: %v\n", name, err)
		return &exitError{code: 1, err: err}
	}
	fmt.Fprintf(a.stdout, "ok    %s  %s -> %s  chunks=%d raw=%d ratio=%.3f\n",
		name, humanize.IBytes(uint64(info.DecodedSize)), humanize.IBytes(uint64(info.EncodedSize)),
		info.Chunks, info.RawChunks, info.Ratio())
	return nil
}

func runPush(ctx context.Context, a *app, args []string) error {
	var tags []string
	flags := newFlagSet(a, "push")
	flags.StringSliceVarP(&tags, "tag", "t", nil, "additional tags to apply")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return usageError("push: expected ARCHIVE REF")
	}
	path, ref := flags.Arg(0), strings.TrimPrefix(flags.Arg(1), ociScheme)

	rc, err := archive.OpenFile(path, a.archiveOpts()...)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // read-only file

	m, err := a.registryClient(ref).Push(ctx, ref, rc.Reader,
		registry.WithTags(tags...),
		registry.WithTitle(filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	fmt.Fprintf(a.stdout, "pushed %s (%d files, %s) %s\n", ref, rc.Len(), humanize.IBytes(uint64(m.Size())), m.Digest())
	return nil
}

func runPull(ctx context.Context, a *app, args []string) error {
	var output string
	flags := newFlagSet(a, "pull")
	flags.StringVarP(&output, "output", "o", "", "archive file to write")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 || output == "" {
		return usageError("pull: expected REF -o ARCHIVE")
	}
	ref := strings.TrimPrefix(flags.Arg(0), ociScheme)

	var buf bytes.Buffer
	m, err := a.registryClient(ref).Download(ctx, ref, &buf)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if err := writeOutput(a, output, buf.Bytes()); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	fmt.Fprintf(a.stdout, "pulled %s into %s (%s)\n", ref, output, humanize.IBytes(uint64(m.Size())))
	return nil
}

func runBench(_ context.Context, a *app, args []string) error {
	var file, size string
	flags := newFlagSet(a, "bench")
	flags.StringVarP(&file, "file", "f", "", "input file (default: generated text)")
	flags.StringVar(&size, "size", "8MiB", "size of generated input")
	if err := parseFlags(flags, args); err != nil {
		return err
	}

	var data []byte
	if file != "" {
		var err error
		if data, err = os.ReadFile(file); err != nil {
			return err
		}
	} else {
		n, err := humanize.ParseBytes(size)
		if err != nil {
			return usageError("bench: --size: %v", err)
		}
		if n > 1<<30 {
			return usageError("bench: --size %s exceeds 1GiB", size)
		}
		data = generateText(int(n))
	}

	results, err := baseline.Compare(data, a.codecOpts...)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(a.stdout)
	fmt.Fprintf(w, "input %s\n", humanize.IBytes(uint64(len(data))))
	for _, res := range results {
		fmt.Fprintf(w, "%-9s %10s  ratio %.3f  encode %-10s decode %-10s %s/s\n",
			res.Codec, humanize.IBytes(uint64(res.OutputSize)), res.Ratio(),
			res.Encode.Round(time.Microsecond), res.Decode.Round(time.Microsecond),
			humanize.IBytes(uint64(res.DecodeThroughput())))
	}
	return w.Flush()
}

// generateText returns n bytes of word-like text with a skewed symbol
// distribution.
func generateText(n int) []byte {
	words := strings.Fields("the of and to in is that for it as with was on be by at this from " +
		"sealpack archive chunk stream footer huffman decode encode worker entry")
	var buf bytes.Buffer
	buf.Grow(n)
	state := uint32(2463534242)
	for buf.Len() < n {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		buf.WriteString(words[int(state%uint32(len(words)))])
		if state%11 == 0 {
			buf.WriteString(".\n")
		} else {
			buf.WriteByte(' ')
		}
	}
	return buf.Bytes()[:n]
}
