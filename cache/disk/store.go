// Package disk provides a disk-backed block cache for archive media.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	// tempPrefix marks blocks that are still being written.
	tempPrefix = "tmp-"
)

// store keeps immutable blocks on disk addressed by digest. Layout is
// <dir>/<algorithm>/<shard>/<encoded>.
type store struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
}

func (s *store) get(d digest.Digest) ([]byte, bool) {
	path, err := s.path(d)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return nil, false
	}
	// Refresh the mtime so pruning evicts least recently used blocks first.
	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // best effort
	return data, true
}

// put writes content under d. The write goes to a temp file that is renamed
// into place, so readers never observe a partial block.
func (s *store) put(d digest.Digest, content []byte) error {
	path, err := s.path(d)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()        //nolint:errcheck // write already failed
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		// A concurrent writer may have won the race with identical content.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	return nil
}

func (s *store) path(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	encoded := d.Encoded()
	if encoded == "" {
		return "", errors.New("cache key is empty")
	}
	base := filepath.Join(s.dir, d.Algorithm().String())
	if s.shardPrefixLen <= 0 {
		return filepath.Join(base, encoded), nil
	}
	prefixLen := min(s.shardPrefixLen, len(encoded))
	return filepath.Join(base, encoded[:prefixLen], encoded), nil
}
