package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// fileSink writes entries beneath a root directory. Files are written to a
// temp file in the same directory and renamed into place, so a partially
// written file is never visible at its final path. All access goes through
// os.Root, which refuses to follow links out of the destination.
type fileSink struct {
	root          *os.Root
	overwrite     bool
	preserveTimes bool
}

// localPath maps an archive name to a relative host path. Names ending in
// "/" are directories. Absolute names, ".." elements, empty elements and
// backslashes are rejected with ErrInsecurePath.
func localPath(name string) (path string, isDir bool, err error) {
	isDir = strings.HasSuffix(name, "/")
	clean := strings.TrimSuffix(name, "/")
	if clean == "" || clean == "." || strings.ContainsRune(clean, '\\') || !fs.ValidPath(clean) {
		return "", false, fmt.Errorf("%w: %q", ErrInsecurePath, name)
	}
	return filepath.FromSlash(clean), isDir, nil
}

// skip reports whether path is already present and overwrite is off.
func (s *fileSink) skip(path string) bool {
	if s.overwrite {
		return false
	}
	_, err := s.root.Lstat(path)
	return err == nil
}

func (s *fileSink) mkdir(path string) error {
	if err := s.root.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// writeFile atomically replaces path with data.
func (s *fileSink) writeFile(path string, data []byte, modTime time.Time) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := s.mkdir(dir); err != nil {
			return err
		}
	}

	tempPath, f, err := s.createTemp(dir)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()               //nolint:errcheck // write already failed
		_ = s.root.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = s.root.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if s.preserveTimes && !modTime.IsZero() {
		if err := s.root.Chtimes(tempPath, modTime, modTime); err != nil {
			_ = s.root.Remove(tempPath) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := s.root.Rename(tempPath, path); err != nil {
		_ = s.root.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// createTemp opens a new hidden file in dir for exclusive writing.
func (s *fileSink) createTemp(dir string) (string, *os.File, error) {
	for range 10 {
		name := filepath.Join(dir, fmt.Sprintf(".unzip-%016x", rand.Uint64()))
		f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("create temp file: %w", err)
		}
		return name, f, nil
	}
	return "", nil, errors.New("create temp file: too many collisions")
}
