//go:build !unix

package platform

import (
	"os"
)

// OpenNoFollow opens name under root for reading without following a
// final symlink. Returns ErrSymlink if name is a symbolic link.
func OpenNoFollow(root *os.Root, name string) (*os.File, error) {
	before, err := lstatNoSymlink(root, name)
	if err != nil {
		return nil, err
	}
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	if err := sameFile(f, before); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
