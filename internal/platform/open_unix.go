//go:build unix

package platform

import (
	"errors"
	"os"
	"syscall"
)

// OpenNoFollow opens name under root for reading without following a
// final symlink. Returns ErrSymlink if name is a symbolic link.
func OpenNoFollow(root *os.Root, name string) (*os.File, error) {
	before, err := lstatNoSymlink(root, name)
	if err != nil {
		return nil, err
	}
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, ErrSymlink
		}
		return nil, err
	}
	if err := sameFile(f, before); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
