package unzip

import (
	"fmt"

	"github.com/meigma/unzip/internal/format"
)

// ReadLocalHeader parses the local file header at the cursor and leaves the
// cursor at the start of the entry's data.
//
// If nameBuf is non-nil the entry name is read into it and returned as
// nameBuf[:n]; a name longer than cap(nameBuf) fails with ErrNameTooLong.
// With a nil nameBuf the name is skipped. The returned header has a zero
// Offset.
func (r *Reader) ReadLocalHeader(nameBuf []byte) (FileHeader, []byte, error) {
	var prefix [format.LocalHeaderLen]byte
	if err := r.readFull(prefix[:], "read local header"); err != nil {
		return FileHeader{}, nil, err
	}
	lh, err := format.DecodeLocalHeader(prefix[:])
	if err != nil {
		return FileHeader{}, nil, err
	}
	if lh.Signature != format.LocalHeaderSignature {
		return FileHeader{}, nil, fmt.Errorf("%w: local header has %#08x", ErrSignature, lh.Signature)
	}

	var name []byte
	nameLen := int(lh.NameLength)
	if nameBuf != nil {
		if nameLen > cap(nameBuf) {
			return FileHeader{}, nil, fmt.Errorf("%w: %d bytes, buffer holds %d", ErrNameTooLong, nameLen, cap(nameBuf))
		}
		name = nameBuf[:nameLen]
		if err := r.readFull(name, "read local name"); err != nil {
			return FileHeader{}, nil, err
		}
	} else if err := r.skip(int64(nameLen), "skip local name"); err != nil {
		return FileHeader{}, nil, err
	}
	if err := r.skip(int64(lh.ExtraLength), "skip local extra field"); err != nil {
		return FileHeader{}, nil, err
	}

	if lh.Method == format.MethodStore && lh.CompressedSize != lh.UncompressedSize {
		return FileHeader{}, nil, fmt.Errorf("%w: compressed %d, uncompressed %d",
			ErrSizeMismatch, lh.CompressedSize, lh.UncompressedSize)
	}
	return headerFromLocal(lh), name, nil
}
