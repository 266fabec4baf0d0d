package archive

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInvalidArchive is returned when the header or entry table is malformed.
	ErrInvalidArchive = errors.New("archive: invalid archive")

	// ErrInvalidPath is returned for entry paths that are empty, too long,
	// or not slash-separated relative paths.
	ErrInvalidPath = errors.New("archive: invalid path")

	// ErrDuplicatePath is returned when Pack is given the same path twice.
	ErrDuplicatePath = errors.New("archive: duplicate path")

	// ErrNoFiles is returned when Pack is given nothing to pack.
	ErrNoFiles = errors.New("archive: no files")

	// ErrNotFound is returned when a path is not in the archive.
	// It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("archive: entry %w", fs.ErrNotExist)
)
