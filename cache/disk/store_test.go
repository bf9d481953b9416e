package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
)

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := store{dir: dir, shardPrefixLen: defaultShardPrefixLen, dirPerm: defaultDirPerm}

	content := []byte("hello")
	key := digest.FromBytes(content)
	if err := s.put(key, content); err != nil {
		t.Fatalf("put() error = %v", err)
	}
	// A second put of the same key is a no-op.
	if err := s.put(key, content); err != nil {
		t.Fatalf("put() again error = %v", err)
	}

	got, ok := s.get(key)
	if !ok {
		t.Fatal("get() ok = false, want true")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("get() content = %q, want %q", got, content)
	}

	encoded := key.Encoded()
	path := filepath.Join(dir, "sha256", encoded[:defaultShardPrefixLen], encoded)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected block file at %s: %v", path, err)
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	t.Parallel()

	s := store{dir: t.TempDir(), dirPerm: defaultDirPerm}
	if err := s.put(digest.Digest("sha256:../../escape"), []byte("x")); err == nil {
		t.Fatal("put() error = nil, want error for invalid digest")
	}
	if _, ok := s.get(digest.Digest("")); ok {
		t.Fatal("get() ok = true for empty digest")
	}
}

func TestPruneBlocksOldestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := store{dir: dir, dirPerm: defaultDirPerm}

	old := digest.FromString("old")
	recent := digest.FromString("recent")
	if err := s.put(old, []byte("0123")); err != nil {
		t.Fatalf("put() error = %v", err)
	}
	if err := s.put(recent, []byte("4567")); err != nil {
		t.Fatalf("put() error = %v", err)
	}
	oldPath, _ := s.path(old)
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	// In-flight writes are not counted or removed.
	if err := os.WriteFile(filepath.Join(dir, tempPrefix+"partial"), []byte("zz"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	freed, remaining, err := pruneBlocks(dir, 4)
	if err != nil {
		t.Fatalf("pruneBlocks() error = %v", err)
	}
	if freed != 4 || remaining != 4 {
		t.Fatalf("pruneBlocks() freed=%d remaining=%d, want 4/4", freed, remaining)
	}
	if _, ok := s.get(old); ok {
		t.Fatal("oldest block survived pruning")
	}
	if _, ok := s.get(recent); !ok {
		t.Fatal("recent block was pruned")
	}
}
