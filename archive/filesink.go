package archive

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileSink writes decoded entries below an os.Root.
//
// Each file is written to a temporary file in its destination directory
// and renamed into place once complete, so partially written files are
// never visible at the final path.
type fileSink struct {
	root      *os.Root
	overwrite bool
}

func (s *fileSink) shouldProcess(e Entry) bool {
	if s.overwrite {
		return true
	}
	_, err := s.root.Lstat(filepath.FromSlash(e.Path))
	return errors.Is(err, os.ErrNotExist)
}

func (s *fileSink) put(_ int, e Entry, content []byte) error {
	destRel := filepath.FromSlash(e.Path)
	if err := s.root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		return fmt.Errorf("archive: create directory for %s: %w", e.Path, err)
	}

	tmp, tmpRel, err := createTempFile(s.root, filepath.Dir(destRel), ".sealpack-")
	if err != nil {
		return fmt.Errorf("archive: create temp file for %s: %w", e.Path, err)
	}
	if err := writeAll(tmp, content); err != nil {
		_ = tmp.Close()           //nolint:errcheck // best-effort cleanup
		_ = s.root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("archive: write %s: %w", e.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("archive: close %s: %w", e.Path, err)
	}
	if err := s.root.Rename(tmpRel, destRel); err != nil {
		_ = s.root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("archive: rename to %s: %w", e.Path, err)
	}
	return nil
}

func (s *fileSink) fail(_ int, _ Entry, err error) error {
	return err
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
