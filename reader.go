package unzip

import (
	"io"
	"log/slog"

	"github.com/meigma/unzip/internal/inflate"
)

const (
	// DefaultBufferSize is the default size of the scratch buffer used for the
	// end record search window and for compressed transfer chunks. Archive
	// comments must fit in the window alongside the end record.
	DefaultBufferSize = 64 << 10

	// MinBufferSize is the smallest accepted scratch buffer.
	MinBufferSize = 64

	// DefaultMaxNameLen is the default capacity of the entry name buffer.
	DefaultMaxNameLen = 4096
)

// InflatePool shares DEFLATE decoders between readers. It is safe for
// concurrent use.
type InflatePool = inflate.Pool

// NewInflatePool creates an empty decoder pool.
func NewInflatePool() *InflatePool {
	return inflate.NewPool()
}

// Reader parses a ZIP archive from a ByteSource.
//
// A Reader owns its scratch buffers and is not safe for concurrent use; use
// one Reader, with its own ByteSource, per goroutine.
type Reader struct {
	src        ByteSource
	buf        []byte // end record window and transfer chunks
	name       []byte // central directory names
	bufferSize int
	maxNameLen int
	pool       *InflatePool
	logger     *slog.Logger
}

// NewReader creates a Reader over src. The Reader does not take ownership of
// src; the caller closes it.
func NewReader(src ByteSource, opts ...Option) *Reader {
	r := &Reader{
		src:        src,
		bufferSize: DefaultBufferSize,
		maxNameLen: DefaultMaxNameLen,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bufferSize < MinBufferSize {
		r.bufferSize = MinBufferSize
	}
	if r.maxNameLen < 0 {
		r.maxNameLen = 0
	}
	if r.pool == nil {
		r.pool = inflate.NewPool()
	}
	r.buf = make([]byte, r.bufferSize)
	r.name = make([]byte, r.maxNameLen)
	return r
}

// Source returns the underlying ByteSource.
func (r *Reader) Source() ByteSource {
	return r.src
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// readFull fills p from the source. A short read or a sticky source error
// is reported as ErrIO.
func (r *Reader) readFull(p []byte, op string) error {
	if _, err := io.ReadFull(r.src, p); err != nil {
		return ioError(op, err)
	}
	if err := r.src.Err(); err != nil {
		return ioError(op, err)
	}
	return nil
}

// skip advances the cursor by n bytes.
func (r *Reader) skip(n int64, op string) error {
	if n == 0 {
		return nil
	}
	if _, err := r.src.Seek(n, io.SeekCurrent); err != nil {
		return ioError(op, err)
	}
	return nil
}

// seekTo moves the cursor to an absolute offset.
func (r *Reader) seekTo(off int64, op string) error {
	if _, err := r.src.Seek(off, io.SeekStart); err != nil {
		return ioError(op, err)
	}
	return nil
}
