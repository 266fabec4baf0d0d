package archive

import (
	"context"
	"fmt"
	"os"
)

// Unpack extracts every entry into dir, creating it if needed.
//
// All paths are checked before anything is written; an entry whose path
// is absolute or escapes dir fails with ErrInvalidPath. Files are written
// through an os.Root, so symlinks inside dir cannot redirect writes
// outside it. Existing files are kept unless WithOverwrite(true) was
// given to Open. Extraction stops at the first failure.
func (r *Reader) Unpack(ctx context.Context, dir string) error {
	for _, e := range r.entries {
		if err := validPath(e.Path); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("archive: create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("archive: open destination %s: %w", dir, err)
	}
	defer root.Close()

	r.cfg.log().Info("unpacking archive", "dir", dir, "entries", len(r.entries))
	return r.process(ctx, StageExtracting, &fileSink{root: root, overwrite: r.cfg.overwrite})
}
