package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/internal/pathutil"
	"github.com/sealpack/sealpack/internal/platform"
)

// File is one input to Pack.
type File struct {
	// Path is the slash-separated path stored in the entry table.
	Path string

	// Data is the file content.
	Data []byte
}

// Pack encodes files and writes them to w as a single archive.
//
// Files are encoded in parallel, then written in the order given. The
// returned entries describe the archive's entry table. Pack rejects an
// empty list, invalid paths and duplicate paths before encoding anything.
//
// The context is checked between files.
func Pack(ctx context.Context, w io.Writer, files []File, opts ...Option) ([]Entry, error) {
	cfg := newConfig(opts)
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if uint64(len(files)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d files exceed the entry limit", ErrInvalidArchive, len(files))
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := validPath(f.Path); err != nil {
			return nil, err
		}
		if _, dup := seen[f.Path]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, f.Path)
		}
		seen[f.Path] = struct{}{}
	}

	cfg.log().Info("packing archive", "files", len(files))

	streams := make([][]byte, len(files))
	var filesDone atomic.Int64
	var bytesDone atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stream, err := sealpack.Encode(f.Data, cfg.codecOpts...)
			if err != nil {
				return fmt.Errorf("archive: encode %s: %w", f.Path, err)
			}
			streams[i] = stream
			cfg.reportProgress(ProgressEvent{
				Stage:      StageEncoding,
				Path:       f.Path,
				BytesDone:  bytesDone.Add(uint64(len(f.Data))),
				FilesDone:  int(filesDone.Add(1)),
				FilesTotal: len(files),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(files))
	var offset uint64
	for i, f := range files {
		size := uint64(len(streams[i]))
		entries[i] = Entry{Path: f.Path, Offset: offset, Size: size}
		offset += size
	}

	cfg.reportProgress(ProgressEvent{Stage: StageWriting, FilesTotal: len(files)})
	if err := writeAll(w, appendTable(make([]byte, 0, tableSize(entries)), entries)); err != nil {
		return nil, fmt.Errorf("archive: write entry table: %w", err)
	}
	for i, stream := range streams {
		if err := writeAll(w, stream); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", entries[i].Path, err)
		}
	}

	cfg.log().Debug("archive written", "files", len(entries), "data_size", offset)
	return entries, nil
}

// PackPaths packs files found under root.
//
// Each path is relative to root and may name a file or a directory;
// directories are walked recursively. Stored paths are slash-separated
// and relative to root. Symbolic links and other non-regular files are
// skipped, and a file reached through more than one path is stored
// once. An empty paths list packs all of root.
func PackPaths(ctx context.Context, w io.Writer, root string, paths []string, opts ...Option) ([]Entry, error) {
	cfg := newConfig(opts)
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if len(paths) == 0 {
		paths = []string{"."}
	}

	cfg.reportProgress(ProgressEvent{Stage: StageEnumerating})
	var files []File
	seen := make(map[string]struct{})
	for _, p := range paths {
		start := pathutil.Normalize(filepath.ToSlash(p))
		if start != "." && !fs.ValidPath(start) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		err := fs.WalkDir(r.FS(), start, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				cfg.log().Debug("skipped non-regular file", "path", path)
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			data, err := platform.ReadRegular(r, filepath.FromSlash(path))
			if err != nil {
				if errors.Is(err, platform.ErrSymlink) {
					cfg.log().Debug("skipped symlink", "path", path)
					return nil
				}
				return err
			}
			seen[path] = struct{}{}
			files = append(files, File{Path: path, Data: data})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return Pack(ctx, w, files, opts...)
}

// writeAll writes all data to w, handling partial writes.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
