// Package cache defines block caching for archive media.
//
// Remote media (HTTP, object stores) pay a round trip per read. The ZIP
// reader touches the end of the archive, the central directory, and then
// each entry, and a second pass (list then extract, or parallel workers)
// repeats many of those reads. A BlockCache splits the medium into fixed
// blocks and keeps them, so repeated reads are served locally.
package cache

import (
	"errors"
	"io"
)

// ErrNoSourceID is returned when wrapping a medium without a stable identity.
var ErrNoSourceID = errors.New("cache: medium has no source id")

// Medium is a random access medium with a stable identity. SourceID must
// change whenever the content may have changed, typically by embedding an
// ETag or digest.
type Medium interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// BlockCache wraps media with block-level caching.
//
// Block caching is most effective for the small scattered reads of
// directory walks and local header lookups. Large sequential reads bypass
// the cache once they span more than MaxBlocksPerRead blocks.
type BlockCache interface {
	Wrap(src Medium, opts ...WrapOption) (Medium, error)

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached blocks until the cache is at or below
	// targetBytes. It returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// DefaultBlockSize matches the reader's default transfer buffer.
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocksPerRead caps cached blocks per ReadAt.
const DefaultMaxBlocksPerRead = 4

// WrapConfig controls block cache wrapping behavior.
type WrapConfig struct {
	BlockSize        int64
	MaxBlocksPerRead int
}

// DefaultWrapConfig returns the default block cache configuration.
func DefaultWrapConfig() WrapConfig {
	return WrapConfig{
		BlockSize:        DefaultBlockSize,
		MaxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
}

// WrapOption configures block cache wrapping behavior.
type WrapOption func(*WrapConfig)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.BlockSize = n
	}
}

// WithMaxBlocksPerRead bypasses caching when a ReadAt spans more than n blocks.
// Values <= 0 disable the limit.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.MaxBlocksPerRead = n
	}
}
