// Package platform wraps the OS-specific parts of reading input files.
package platform

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ErrSymlink is returned when attempting to open a symbolic link.
var ErrSymlink = errors.New("symbolic links not supported")

// lstatNoSymlink stats name without following it and rejects symlinks.
// os.Root follows links that stay inside the root even with O_NOFOLLOW.
func lstatNoSymlink(root *os.Root, name string) (fs.FileInfo, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, ErrSymlink
	}
	return info, nil
}

// sameFile fails with ErrSymlink if f is not the file described by
// before, which happens when name was swapped for a link after Lstat.
func sameFile(f *os.File, before fs.FileInfo) error {
	after, err := f.Stat()
	if err != nil {
		return err
	}
	if !os.SameFile(before, after) {
		return fmt.Errorf("%w: %s changed while opening", ErrSymlink, f.Name())
	}
	return nil
}

// ReadRegular reads the whole of the regular file name under root.
// Symlinks fail with ErrSymlink; other non-regular files are rejected.
func ReadRegular(root *os.Root, name string) ([]byte, error) {
	f, err := OpenNoFollow(root, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", name)
	}
	if info.Size() < 0 {
		return nil, fmt.Errorf("negative file size: %s", name)
	}

	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
