package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/unzip/cache"
)

// Interface compliance.
var _ cache.BlockCache = (*BlockCache)(nil)

// BlockCache implements cache.BlockCache on the local filesystem.
//
// Blocks are keyed by the sha256 digest of (source id, block size, block
// index), so media with different identities never share blocks. Concurrent
// misses on the same block are collapsed into one fetch.
type BlockCache struct {
	store    store
	maxBytes int64
	logger   *slog.Logger

	group singleflight.Group
	size  atomic.Int64 // approximate bytes on disk
}

// BlockCacheOption configures a BlockCache.
type BlockCacheOption func(*BlockCache)

// WithMaxBytes limits the cache size. When a new block pushes the cache over
// the limit, the least recently used blocks are pruned. 0 means unlimited.
func WithMaxBytes(n int64) BlockCacheOption {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) BlockCacheOption {
	return func(c *BlockCache) {
		c.store.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of cache directories.
func WithDirPerm(mode os.FileMode) BlockCacheOption {
	return func(c *BlockCache) {
		c.store.dirPerm = mode
	}
}

// WithLogger sets the logger for cache diagnostics.
func WithLogger(logger *slog.Logger) BlockCacheOption {
	return func(c *BlockCache) {
		c.logger = logger
	}
}

// NewBlockCache creates a block cache rooted at dir.
func NewBlockCache(dir string, opts ...BlockCacheOption) (*BlockCache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &BlockCache{
		store: store{
			dir:            dir,
			shardPrefixLen: defaultShardPrefixLen,
			dirPerm:        defaultDirPerm,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.store.dirPerm); err != nil {
		return nil, err
	}
	_, total, err := listBlocks(dir)
	if err != nil {
		return nil, err
	}
	c.size.Store(total)
	return c, nil
}

// Wrap returns a medium that serves reads of src through the cache.
// The returned medium closes src on Close when src is an io.Closer.
func (c *BlockCache) Wrap(src cache.Medium, opts ...cache.WrapOption) (cache.Medium, error) {
	if src == nil {
		return nil, errors.New("cache: nil medium")
	}
	id := src.SourceID()
	if id == "" {
		return nil, cache.ErrNoSourceID
	}
	cfg := cache.DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("cache: block size %d must be positive", cfg.BlockSize)
	}
	return &cachedMedium{cache: c, src: src, id: id, cfg: cfg}, nil
}

// MaxBytes returns the configured size limit.
func (c *BlockCache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the bytes currently stored.
func (c *BlockCache) SizeBytes() int64 {
	_, total, err := listBlocks(c.store.dir)
	if err != nil {
		return c.size.Load()
	}
	c.size.Store(total)
	return total
}

// Prune removes least recently used blocks until at most targetBytes remain.
func (c *BlockCache) Prune(targetBytes int64) (int64, error) {
	freed, remaining, err := pruneBlocks(c.store.dir, targetBytes)
	c.size.Store(remaining)
	if freed > 0 {
		c.log().Debug("pruned block cache", "freed", freed, "remaining", remaining)
	}
	return freed, err
}

func (c *BlockCache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// blockKey derives the storage key for one block of a medium.
func blockKey(id string, blockSize, index int64) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s\x00%d\x00%d", id, blockSize, index))
}

// added accounts for a newly stored block and prunes when over the limit.
func (c *BlockCache) added(n int64) {
	if c.maxBytes <= 0 {
		return
	}
	if c.size.Add(n) <= c.maxBytes {
		return
	}
	if _, err := c.Prune(c.maxBytes); err != nil {
		c.log().Warn("block cache prune failed", "error", err)
	}
}

// cachedMedium serves reads from cached blocks, fetching misses from src.
type cachedMedium struct {
	cache *BlockCache
	src   cache.Medium
	id    string
	cfg   cache.WrapConfig
}

func (m *cachedMedium) Size() int64 {
	return m.src.Size()
}

func (m *cachedMedium) SourceID() string {
	return m.id
}

// Close closes the wrapped medium if it can be closed.
func (m *cachedMedium) Close() error {
	if closer, ok := m.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (m *cachedMedium) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := m.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	bs := m.cfg.BlockSize
	end := min(off+int64(len(p)), size)
	first, last := off/bs, (end-1)/bs
	if m.cfg.MaxBlocksPerRead > 0 && last-first+1 > int64(m.cfg.MaxBlocksPerRead) {
		return m.src.ReadAt(p, off)
	}

	n := 0
	for index := first; index <= last; index++ {
		block, err := m.block(index, size)
		if err != nil {
			return n, err
		}
		start := max(off, index*bs) - index*bs
		n += copy(p[n:], block[start:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// block returns the contents of block index, fetching it on a miss.
func (m *cachedMedium) block(index, size int64) ([]byte, error) {
	bs := m.cfg.BlockSize
	want := min(bs, size-index*bs)
	key := blockKey(m.id, bs, index)

	if data, ok := m.cache.store.get(key); ok && int64(len(data)) == want {
		return data, nil
	}

	v, err, _ := m.cache.group.Do(key.String(), func() (any, error) {
		// A flight that finished just before this one may have stored it.
		if data, ok := m.cache.store.get(key); ok && int64(len(data)) == want {
			return data, nil
		}
		buf := make([]byte, want)
		n, err := m.src.ReadAt(buf, index*bs)
		if int64(n) < want {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if err := m.cache.store.put(key, buf); err != nil {
			// The read succeeded; a cache write failure only costs a refetch.
			m.cache.log().Warn("block cache write failed", "block", index, "error", err)
			return buf, nil
		}
		m.cache.added(want)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
