// Package testutil builds ZIP archives and faulty media for tests.
package testutil

import (
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/meigma/unzip/internal/format"
)

// TestEntry describes one entry of a test archive.
type TestEntry struct {
	Name    string
	Data    []byte
	Method  uint16
	Extra   []byte // written to both local header and central directory
	Comment string // central directory file comment

	// DataDescriptor zeroes CRC-32 and sizes in the local header, sets flag
	// bit 3, and appends a data descriptor after the payload.
	DataDescriptor bool
}

// Archive is an assembled archive plus the offsets of its records.
type Archive struct {
	Bytes          []byte
	LocalOffsets   []int // local header offset per entry
	CentralOffsets []int // central directory entry offset per entry
	EndOffset      int   // end record offset
}

// ArchiveOption configures BuildArchive.
type ArchiveOption func(*archiveConfig)

type archiveConfig struct {
	comment   string
	prefix    []byte
	editEnd   func(*format.EndRecord)
	timestamp [2]uint16
}

// WithComment sets the archive comment written after the end record.
func WithComment(comment string) ArchiveOption {
	return func(c *archiveConfig) {
		c.comment = comment
	}
}

// WithPrefix places data before the first local header, as self-extracting
// archives do. Offsets in the archive account for it.
func WithPrefix(prefix []byte) ArchiveOption {
	return func(c *archiveConfig) {
		c.prefix = prefix
	}
}

// WithEndRecord edits the end record before it is encoded.
func WithEndRecord(edit func(*format.EndRecord)) ArchiveOption {
	return func(c *archiveConfig) {
		c.editEnd = edit
	}
}

// WithTimestamp sets the MS-DOS date and time of every entry.
func WithTimestamp(dosDate, dosTime uint16) ArchiveOption {
	return func(c *archiveConfig) {
		c.timestamp = [2]uint16{dosDate, dosTime}
	}
}

// BuildArchive assembles a single-volume archive from entries.
func BuildArchive(tb testing.TB, entries []TestEntry, opts ...ArchiveOption) *Archive {
	tb.Helper()

	cfg := archiveConfig{timestamp: [2]uint16{0x5a21, 0x6b2f}}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Archive{}
	buf := append([]byte(nil), cfg.prefix...)
	centrals := make([]format.CentralEntry, len(entries))

	for i, e := range entries {
		payload := e.Data
		if e.Method == format.MethodDeflate {
			payload = Deflate(tb, e.Data)
		}
		sum := crc32.ChecksumIEEE(e.Data)

		lh := format.LocalHeader{
			Signature:        format.LocalHeaderSignature,
			VersionNeeded:    20,
			Method:           e.Method,
			ModDate:          cfg.timestamp[0],
			ModTime:          cfg.timestamp[1],
			CRC32:            sum,
			CompressedSize:   uint32(len(payload)),
			UncompressedSize: uint32(len(e.Data)),
			NameLength:       uint16(len(e.Name)),
			ExtraLength:      uint16(len(e.Extra)),
		}
		if e.DataDescriptor {
			lh.Flags |= 0x8
			lh.CRC32, lh.CompressedSize, lh.UncompressedSize = 0, 0, 0
		}

		a.LocalOffsets = append(a.LocalOffsets, len(buf))
		buf = lh.Append(buf)
		buf = append(buf, e.Name...)
		buf = append(buf, e.Extra...)
		buf = append(buf, payload...)
		if e.DataDescriptor {
			buf = le32(buf, 0x08074b50)
			buf = le32(buf, sum)
			buf = le32(buf, uint32(len(payload)))
			buf = le32(buf, uint32(len(e.Data)))
		}

		centrals[i] = format.CentralEntry{
			Signature:         format.CentralEntrySignature,
			VersionMadeBy:     20,
			VersionNeeded:     20,
			Flags:             lh.Flags,
			Method:            e.Method,
			ModDate:           cfg.timestamp[0],
			ModTime:           cfg.timestamp[1],
			CRC32:             sum,
			CompressedSize:    uint32(len(payload)),
			UncompressedSize:  uint32(len(e.Data)),
			NameLength:        uint16(len(e.Name)),
			ExtraLength:       uint16(len(e.Extra)),
			CommentLength:     uint16(len(e.Comment)),
			LocalHeaderOffset: uint32(a.LocalOffsets[i]),
		}
	}

	dirStart := len(buf)
	for i, e := range entries {
		a.CentralOffsets = append(a.CentralOffsets, len(buf))
		buf = centrals[i].Append(buf)
		buf = append(buf, e.Name...)
		buf = append(buf, e.Extra...)
		buf = append(buf, e.Comment...)
	}

	end := format.EndRecord{
		Signature:              format.EndRecordSignature,
		NumEntriesThisDisk:     uint16(len(entries)),
		NumEntries:             uint16(len(entries)),
		CentralDirectorySize:   uint32(len(buf) - dirStart),
		CentralDirectoryOffset: uint32(dirStart),
		CommentLength:          uint16(len(cfg.comment)),
	}
	if cfg.editEnd != nil {
		cfg.editEnd(&end)
	}
	a.EndOffset = len(buf)
	buf = end.Append(buf)
	buf = append(buf, cfg.comment...)

	a.Bytes = buf
	return a
}

// Deflate compresses data as a raw DEFLATE stream.
func Deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		tb.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("flate write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("flate close error = %v", err)
	}
	return out.Bytes()
}

// Incompressible returns n pseudo-random bytes that DEFLATE cannot shrink much.
func Incompressible(n int, seed uint32) []byte {
	out := make([]byte, n)
	x := seed | 1
	for i := range out {
		// xorshift32
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x)
	}
	return out
}

func le32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// ErrInjected is the error returned by FaultyMedium.
var ErrInjected = errors.New("injected read failure")

// MockMedium is an in-memory random access medium that counts reads.
type MockMedium struct {
	data  []byte
	reads atomic.Int64
}

// NewMockMedium returns a medium backed by data.
func NewMockMedium(data []byte) *MockMedium {
	return &MockMedium{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockMedium) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the size of the backing data.
func (m *MockMedium) Size() int64 {
	return int64(len(m.data))
}

// Reads returns the number of ReadAt calls so far.
func (m *MockMedium) Reads() int64 {
	return m.reads.Load()
}

// FaultyMedium fails every read that touches bytes at or beyond FailAt.
type FaultyMedium struct {
	*MockMedium
	FailAt int64
}

// NewFaultyMedium returns a medium over data that fails reads reaching failAt.
func NewFaultyMedium(data []byte, failAt int64) *FaultyMedium {
	return &FaultyMedium{MockMedium: NewMockMedium(data), FailAt: failAt}
}

// ReadAt returns ErrInjected for reads that reach FailAt.
func (m *FaultyMedium) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > m.FailAt {
		m.reads.Add(1)
		return 0, ErrInjected
	}
	return m.MockMedium.ReadAt(p, off)
}
