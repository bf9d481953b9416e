package unzip

import (
	"fmt"
	"io"

	"github.com/meigma/unzip/internal/format"
)

// ReadEndRecord locates and parses the end of central directory record.
//
// The trailing window of the archive, bounded by the scratch buffer size, is
// scanned backward for the record signature, so a trailing archive comment
// is tolerated as long as it fits in the window. The source is repositioned
// internally and left at an unspecified offset.
//
// Archives smaller than a bare end record fail with ErrEmptyArchive without
// further reads. Split archives fail with ErrMultiVolume.
func (r *Reader) ReadEndRecord() (EndRecord, error) {
	size, err := r.src.Seek(0, io.SeekEnd)
	if err != nil {
		return EndRecord{}, ioError("seek to end", err)
	}
	if size < format.EndRecordLen {
		return EndRecord{}, fmt.Errorf("%w: %d bytes", ErrEmptyArchive, size)
	}

	window := min(size, int64(len(r.buf)))
	if err := r.seekTo(size-window, "seek to end window"); err != nil {
		return EndRecord{}, err
	}
	buf := r.buf[:window]
	if err := r.readFull(buf, "read end window"); err != nil {
		return EndRecord{}, err
	}

	p := format.FindEndRecord(buf)
	if p < 0 {
		return EndRecord{}, fmt.Errorf("%w in last %d bytes", ErrNoEndRecord, window)
	}
	end, err := format.DecodeEndRecord(buf[p:])
	if err != nil {
		return EndRecord{}, err
	}

	if end.DiskNumber != 0 || end.CentralDirectoryDisk != 0 || end.NumEntries != end.NumEntriesThisDisk {
		return EndRecord{}, fmt.Errorf("%w: disk %d, directory disk %d, %d of %d entries on this disk",
			ErrMultiVolume, end.DiskNumber, end.CentralDirectoryDisk, end.NumEntriesThisDisk, end.NumEntries)
	}

	r.log().Debug("located end of central directory",
		"offset", size-window+int64(p),
		"entries", end.NumEntries,
		"directory_offset", end.CentralDirectoryOffset,
		"directory_size", end.CentralDirectorySize)
	return end, nil
}
