// Package extract writes the entries of a ZIP archive to a directory.
//
// Extraction walks the central directory once. For each entry it follows
// the directory's offset to the local header, checks the local header
// against the directory, decompresses the data, verifies the CRC-32 and
// writes the result through an os.Root confined to the destination.
//
// A failing entry is logged and counted in Stats.Failed, and the walk moves
// on. Failures to locate or walk the directory abort extraction.
package extract

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/meigma/unzip"
)

var (
	// ErrInsecurePath is returned for entry names that would resolve
	// outside the destination directory.
	ErrInsecurePath = errors.New("extract: insecure path")

	// ErrTooLarge is returned for entries above the configured size limit.
	ErrTooLarge = errors.New("extract: entry exceeds size limit")

	// ErrNameMismatch is returned when an entry's local header names a
	// different file than its central directory entry.
	ErrNameMismatch = errors.New("extract: local header name differs from central directory")
)

// Stats summarizes an extraction.
type Stats struct {
	Files   int    // regular files written
	Dirs    int    // directory entries created
	Skipped int    // existing files left in place
	Failed  int    // entries that could not be extracted
	Bytes   uint64 // uncompressed bytes written
}

// outcome is what happened to one entry that did not fail.
type outcome int

const (
	wroteFile outcome = iota
	madeDir
	skipped
)

func (s *Stats) record(o outcome, size uint32) {
	switch o {
	case wroteFile:
		s.Files++
		s.Bytes += uint64(size)
	case madeDir:
		s.Dirs++
	case skipped:
		s.Skipped++
	}
}

// Extractor writes archive entries beneath a destination directory.
type Extractor struct {
	destDir     string
	sink        fileSink
	verify      bool
	maxFileSize uint64
	maxInFlight int64
	readerOpts  []unzip.Option
	progress    ProgressFunc
	logger      *slog.Logger
}

// New creates an Extractor writing to destDir. The directory is created on
// first use if it does not exist.
func New(destDir string, opts ...Option) *Extractor {
	x := &Extractor{
		destDir:     destDir,
		verify:      true,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract walks r's central directory and extracts every entry.
//
// The returned error is non-nil only when the archive itself cannot be
// walked; per-entry failures are reported through Stats.Failed. Entries
// extracted before a walk failure stay on disk.
func (x *Extractor) Extract(r *unzip.Reader) (Stats, error) {
	var stats Stats

	root, err := x.openRoot()
	if err != nil {
		return stats, err
	}
	defer root.Close()

	end, err := r.ReadEndRecord()
	if err != nil {
		return stats, err
	}

	var (
		nameBuf []byte
		fatal   error
	)
	progress := newTracker(x.progress, int(end.NumEntries), 0)
	walkErr := r.WalkCentralDirectory(end, func(src unzip.ByteSource, index int, hdr *unzip.FileHeader, name []byte) bool {
		pos, err := src.Tell()
		if err != nil {
			fatal = fmt.Errorf("extract: tell: %w", err)
			return false
		}

		entryName := string(name)
		o, err := x.extractEntry(root, r, *hdr, entryName, &nameBuf)
		if err != nil {
			x.fail(index, entryName, err)
			stats.Failed++
		} else {
			stats.record(o, hdr.UncompressedSize)
		}
		progress.done(entryName, hdr.UncompressedSize)

		// The walk resumes from the cursor, so restoring it is not optional.
		if _, err := src.Seek(pos, io.SeekStart); err != nil {
			fatal = fmt.Errorf("extract: restore position: %w", err)
			return false
		}
		return true
	})
	if walkErr != nil {
		return stats, walkErr
	}
	if fatal != nil {
		return stats, fatal
	}

	x.log().Debug("extraction finished",
		"files", stats.Files, "dirs", stats.Dirs, "skipped", stats.Skipped,
		"failed", stats.Failed, "bytes", stats.Bytes)
	return stats, nil
}

// extractEntry extracts one entry. It moves the cursor of r.
func (x *Extractor) extractEntry(root *os.Root, r *unzip.Reader, central unzip.FileHeader, name string, nameBuf *[]byte) (outcome, error) {
	sink := x.sink
	sink.root = root

	path, isDir, err := localPath(name)
	if err != nil {
		return 0, err
	}
	if isDir {
		if err := sink.mkdir(path); err != nil {
			return 0, err
		}
		return madeDir, nil
	}
	if sink.skip(path) {
		return skipped, nil
	}
	if x.maxFileSize > 0 && uint64(central.UncompressedSize) > x.maxFileSize {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, central.UncompressedSize, x.maxFileSize)
	}

	if _, err := r.Source().Seek(int64(central.Offset), io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: seek to local header: %w", unzip.ErrIO, err)
	}
	if cap(*nameBuf) < len(name) {
		*nameBuf = make([]byte, 0, len(name))
	}
	local, localName, err := r.ReadLocalHeader(*nameBuf)
	if errors.Is(err, unzip.ErrNameTooLong) {
		return 0, fmt.Errorf("%w: local name is longer", ErrNameMismatch)
	}
	if err != nil {
		return 0, err
	}
	if string(localName) != name {
		return 0, fmt.Errorf("%w: %q", ErrNameMismatch, localName)
	}
	hdr, err := unzip.Resolve(central, local)
	if err != nil {
		return 0, err
	}

	data := make([]byte, hdr.UncompressedSize)
	if err := r.ReadData(hdr, data); err != nil {
		return 0, err
	}
	if x.verify {
		if err := unzip.VerifyChecksum(hdr, data); err != nil {
			return 0, err
		}
	}
	if err := sink.writeFile(path, data, hdr.Modified()); err != nil {
		return 0, err
	}
	x.log().Debug("extracted file", "name", name, "bytes", len(data), "method", hdr.Method)
	return wroteFile, nil
}

func (x *Extractor) openRoot() (*os.Root, error) {
	if err := os.MkdirAll(x.destDir, dirPerm); err != nil {
		return nil, fmt.Errorf("extract: create destination: %w", err)
	}
	root, err := os.OpenRoot(x.destDir)
	if err != nil {
		return nil, fmt.Errorf("extract: open destination: %w", err)
	}
	return root, nil
}

func (x *Extractor) fail(index int, name string, err error) {
	x.log().Warn("entry not extracted", "index", index, "name", name, "error", err)
}

func (x *Extractor) log() *slog.Logger {
	if x.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.logger
}
