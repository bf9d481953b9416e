package unzip

import (
	"fmt"
	"iter"
)

// Entries returns an iterator over the archive's central directory. The end
// record is located when iteration starts. A failure is yielded once as a
// final (Entry{}, err) pair.
//
// The cursor is shared with the Reader; do not move it from inside the loop
// without restoring it. ReadEntry restores it.
func (r *Reader) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		end, err := r.ReadEndRecord()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		err = r.WalkCentralDirectory(end, func(_ ByteSource, index int, hdr *FileHeader, name []byte) bool {
			return yield(Entry{Index: index, Name: string(name), Header: *hdr}, nil)
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

// List returns every central directory entry.
func (r *Reader) List() ([]Entry, error) {
	end, err := r.ReadEndRecord()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, end.NumEntries)
	err = r.WalkCentralDirectory(end, func(_ ByteSource, index int, hdr *FileHeader, name []byte) bool {
		entries = append(entries, Entry{Index: index, Name: string(name), Header: *hdr})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadEntry reads the data of a central directory entry. It seeks to the
// entry's local header, checks it against the directory with Resolve,
// decompresses into dst (allocating when dst is too small) and returns the
// filled slice. The cursor is restored to where it was on every path.
func (r *Reader) ReadEntry(e Entry, dst []byte) (data []byte, err error) {
	pos, err := r.src.Tell()
	if err != nil {
		return nil, ioError("tell", err)
	}
	defer func() {
		if seekErr := r.seekTo(pos, "restore position"); seekErr != nil && err == nil {
			data, err = nil, seekErr
		}
	}()

	if err := r.seekTo(int64(e.Header.Offset), "seek to local header"); err != nil {
		return nil, err
	}
	local, _, err := r.ReadLocalHeader(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	hdr, err := Resolve(e.Header, local)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}

	if uint64(cap(dst)) < uint64(hdr.UncompressedSize) {
		dst = make([]byte, hdr.UncompressedSize)
	}
	dst = dst[:hdr.UncompressedSize]
	if err := r.ReadData(hdr, dst); err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return dst, nil
}
