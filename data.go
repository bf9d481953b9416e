package unzip

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/unzip/internal/sizing"
)

// ReadData decompresses the entry whose data starts at the cursor into dst.
//
// dst must hold at least hdr.UncompressedSize bytes; only that prefix is
// written. Stored entries are copied verbatim. Deflated entries are
// inflated from compressed reads of at most the scratch buffer size, so
// memory use does not grow with the entry. No checksum is verified here;
// see VerifyChecksum.
//
// Errors: ErrUnsupportedMethod for methods other than store and deflate,
// ErrIO for source failures, ErrDecompression for corrupt or truncated
// compressed data.
func (r *Reader) ReadData(hdr FileHeader, dst []byte) error {
	switch hdr.Method {
	case Store, Deflate:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, hdr.Method)
	}

	size, err := sizing.ToInt(uint64(hdr.UncompressedSize), ErrShortBuffer)
	if err != nil {
		return err
	}
	if len(dst) < size {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, size, len(dst))
	}
	dst = dst[:size]

	if hdr.Method == Store {
		if hdr.CompressedSize != hdr.UncompressedSize {
			return fmt.Errorf("%w: compressed %d, uncompressed %d",
				ErrSizeMismatch, hdr.CompressedSize, hdr.UncompressedSize)
		}
		return r.readFull(dst, "read stored data")
	}
	return r.inflate(hdr, dst)
}

// inflate runs a raw DEFLATE decoder over the entry's compressed bytes.
func (r *Reader) inflate(hdr FileHeader, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}

	feed := &chunkFeeder{
		src:       r.src,
		buf:       r.buf,
		remaining: int64(hdr.CompressedSize),
	}
	dec, release, err := r.pool.Get(feed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	defer release()

	written := 0
	for written < len(dst) {
		n, err := dec.Read(dst[written:])
		written += n
		if err == nil {
			continue
		}
		if errors.Is(err, ErrIO) {
			return err
		}
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: compressed data truncated after %d of %d bytes", ErrDecompression, written, len(dst))
		}
		return fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	if written < len(dst) {
		return fmt.Errorf("%w: stream ended after %d of %d bytes", ErrDecompression, written, len(dst))
	}
	return nil
}

// chunkFeeder hands compressed bytes to the decoder. It reads from the
// source in chunks of at most len(buf), never past the entry's compressed
// size. A read that yields nothing, or a sticky source error, is an I/O
// failure; running out of compressed bytes is io.EOF.
type chunkFeeder struct {
	src       ByteSource
	buf       []byte
	remaining int64
	pending   []byte
}

func (f *chunkFeeder) fill() error {
	if f.remaining == 0 {
		return io.EOF
	}
	want := min(int64(len(f.buf)), f.remaining)
	n, err := f.src.Read(f.buf[:want])
	if srcErr := f.src.Err(); srcErr != nil {
		return ioError("read compressed data", srcErr)
	}
	if n == 0 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return ioError("read compressed data", err)
	}
	f.remaining -= int64(n)
	f.pending = f.buf[:n]
	return nil
}

// Read implements io.Reader.
func (f *chunkFeeder) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		if err := f.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// ReadByte implements io.ByteReader so the decoder reads exactly the bytes
// it needs instead of buffering ahead.
func (f *chunkFeeder) ReadByte() (byte, error) {
	if len(f.pending) == 0 {
		if err := f.fill(); err != nil {
			return 0, err
		}
	}
	b := f.pending[0]
	f.pending = f.pending[1:]
	return b, nil
}
