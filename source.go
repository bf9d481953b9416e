package unzip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ByteSource is a sequential reader with a movable cursor over an archive.
//
// A read that returns fewer bytes than requested, or a non-nil Err, is an
// unrecoverable I/O fault for the operation in progress. Seek supports
// io.SeekStart, io.SeekCurrent and io.SeekEnd.
//
// A ByteSource is not safe for concurrent use. The cursor is shared by every
// operation that receives the same handle.
type ByteSource interface {
	io.Reader
	io.Seeker
	io.Closer

	// Tell returns the current cursor position.
	Tell() (int64, error)

	// Err returns the first medium error seen by the source, if any.
	Err() error
}

// RandomAccess is a medium that supports positional reads.
//
// Implementations exist for local files, in-memory data, HTTP range
// requests, S3-compatible object stores, and block-cached wrappers of those.
type RandomAccess interface {
	io.ReaderAt
	Size() int64
}

// Interface compliance.
var _ ByteSource = (*Cursor)(nil)

// Cursor implements ByteSource over a RandomAccess medium.
type Cursor struct {
	medium RandomAccess
	pos    int64
	err    error

	closeOnce sync.Once
	closeErr  error
}

// NewCursor returns a Cursor positioned at the start of medium.
// Close closes medium if it implements io.Closer.
func NewCursor(medium RandomAccess) *Cursor {
	return &Cursor{medium: medium}
}

// FromBytes returns a Cursor over an in-memory archive.
func FromBytes(data []byte) *Cursor {
	return NewCursor(bytes.NewReader(data))
}

// OpenFile opens the archive at path. The caller must Close the returned
// Cursor; on error nothing is left open.
func OpenFile(path string) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("open %s: not a regular file", path)
	}
	return NewCursor(&fileMedium{File: f, size: info.Size()}), nil
}

// Read reads up to len(p) bytes at the cursor and advances it.
// Once the medium has failed, every Read returns the latched error.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	size := c.medium.Size()
	if c.pos >= size {
		return 0, io.EOF
	}
	if remaining := size - c.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := c.medium.ReadAt(p, c.pos)
	c.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		c.err = err
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek moves the cursor. Positions past the end are allowed; reads there
// return io.EOF.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		abs = c.medium.Size() + offset
	default:
		return c.pos, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return c.pos, fmt.Errorf("seek: negative position %d", abs)
	}
	c.pos = abs
	return abs, nil
}

// Tell returns the cursor position.
func (c *Cursor) Tell() (int64, error) {
	return c.pos, nil
}

// Err returns the latched medium error.
func (c *Cursor) Err() error {
	return c.err
}

// Size returns the size of the underlying medium.
func (c *Cursor) Size() int64 {
	return c.medium.Size()
}

// Close releases the medium. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.closeOnce.Do(func() {
		if closer, ok := c.medium.(io.Closer); ok {
			c.closeErr = closer.Close()
		}
	})
	return c.closeErr
}

// fileMedium pairs an open file with the size observed at open time.
type fileMedium struct {
	*os.File
	size int64
}

func (m *fileMedium) Size() int64 {
	return m.size
}
