package unzip

import (
	"errors"
	"fmt"
)

// I/O failures. The underlying medium error is wrapped alongside ErrIO.
var (
	// ErrIO is returned when a read, seek or tell fails, a read comes up
	// short, or the source reports a sticky error.
	ErrIO = errors.New("unzip: i/o failure")
)

// Structural corruption.
var (
	// ErrEmptyArchive is returned when the source is smaller than an end of
	// central directory record.
	ErrEmptyArchive = errors.New("unzip: archive is empty")

	// ErrNoEndRecord is returned when no end of central directory signature
	// is found in the trailing window.
	ErrNoEndRecord = errors.New("unzip: end of central directory not found")

	// ErrSignature is returned when a record does not start with its magic value.
	ErrSignature = errors.New("unzip: invalid record signature")

	// ErrNameTooLong is returned when an entry name does not fit the name buffer.
	ErrNameTooLong = errors.New("unzip: entry name too long")

	// ErrSizeMismatch is returned when a stored entry declares different
	// compressed and uncompressed sizes.
	ErrSizeMismatch = errors.New("unzip: stored entry size mismatch")

	// ErrHeaderMismatch is returned when a local header disagrees with its
	// central directory entry.
	ErrHeaderMismatch = errors.New("unzip: local header disagrees with central directory")
)

// Decoder failures.
var (
	// ErrDecompression is returned when compressed data is corrupt or truncated.
	ErrDecompression = errors.New("unzip: decompression failed")
)

// Unsupported features.
var (
	// ErrMultiVolume is returned for archives split across several disks.
	ErrMultiVolume = errors.New("unzip: multi-volume archives are not supported")

	// ErrUnsupportedMethod is returned for compression methods other than
	// store and deflate.
	ErrUnsupportedMethod = errors.New("unzip: unsupported compression method")
)

// Integrity and caller errors.
var (
	// ErrChecksum is returned by VerifyChecksum when the CRC-32 of the data
	// does not match the header.
	ErrChecksum = errors.New("unzip: checksum mismatch")

	// ErrShortBuffer is returned when a destination buffer cannot hold the
	// uncompressed entry.
	ErrShortBuffer = errors.New("unzip: destination buffer too small")
)

// DirectoryError reports a central directory walk that was aborted because
// the archive is broken. A walk stopped by its callback returns nil instead.
type DirectoryError struct {
	// Index is the zero-based position of the entry being read.
	Index int
	Err   error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("central directory entry %d: %v", e.Index, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// ioError wraps a medium failure so that errors.Is matches both ErrIO and err.
func ioError(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrIO, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
