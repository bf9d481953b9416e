package unzip

import (
	"fmt"

	"github.com/meigma/unzip/internal/format"
)

// WalkFunc is called once per central directory entry, in archive order.
//
// name aliases the Reader's name buffer and is only valid until fn returns.
// hdr.Offset is the position of the entry's local header. A callback that
// moves the source cursor must restore it before returning, because the
// walk resumes from the current position. Returning false stops the walk
// without error.
type WalkFunc func(src ByteSource, index int, hdr *FileHeader, name []byte) bool

// WalkCentralDirectory iterates the end record's NumEntries central
// directory entries and calls fn for each.
//
// Extra fields and file comments are skipped. Any read or seek failure,
// signature mismatch or over-long name aborts the walk with a
// *DirectoryError carrying the index of the failing entry; callbacks for all
// earlier entries have already run by then.
func (r *Reader) WalkCentralDirectory(end EndRecord, fn WalkFunc) error {
	if err := r.seekTo(int64(end.CentralDirectoryOffset), "seek to central directory"); err != nil {
		return &DirectoryError{Index: 0, Err: err}
	}

	var prefix [format.CentralEntryLen]byte
	for i := range int(end.NumEntries) {
		hdr, name, err := r.readCentralEntry(prefix[:])
		if err != nil {
			return &DirectoryError{Index: i, Err: err}
		}
		if !fn(r.src, i, &hdr, name) {
			r.log().Debug("central directory walk stopped", "index", i)
			return nil
		}
	}
	return nil
}

// readCentralEntry reads one entry at the cursor and leaves the cursor at
// the next entry.
func (r *Reader) readCentralEntry(prefix []byte) (FileHeader, []byte, error) {
	if err := r.readFull(prefix, "read central directory entry"); err != nil {
		return FileHeader{}, nil, err
	}
	entry, err := format.DecodeCentralEntry(prefix)
	if err != nil {
		return FileHeader{}, nil, err
	}
	if entry.Signature != format.CentralEntrySignature {
		return FileHeader{}, nil, fmt.Errorf("%w: central directory entry has %#08x", ErrSignature, entry.Signature)
	}

	nameLen := int(entry.NameLength)
	if nameLen > len(r.name) {
		return FileHeader{}, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, nameLen, len(r.name))
	}
	name := r.name[:nameLen]
	if err := r.readFull(name, "read entry name"); err != nil {
		return FileHeader{}, nil, err
	}
	if err := r.skip(entry.TrailerLength(), "skip extra field and comment"); err != nil {
		return FileHeader{}, nil, err
	}
	return headerFromCentral(entry), name, nil
}
