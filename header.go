package unzip

import (
	"fmt"
	"strconv"
	"time"

	"github.com/meigma/unzip/internal/format"
)

// Method identifies how an entry's payload is encoded.
type Method uint16

// Supported compression methods.
const (
	Store   Method = Method(format.MethodStore)
	Deflate Method = Method(format.MethodDeflate)
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return "method(" + strconv.Itoa(int(m)) + ")"
	}
}

// EndRecord is the end of central directory record.
type EndRecord = format.EndRecord

// FileHeader is the metadata needed to read an entry's data. It is produced
// by both the central directory walk and the local header reader.
type FileHeader struct {
	Method           Method
	Flags            uint16 // general purpose bit flag
	ModTime          uint16 // MS-DOS time
	ModDate          uint16 // MS-DOS date
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32

	// Offset is the position of the entry's local header within the
	// archive. It is only set by the central directory walk; the local
	// header reader leaves it zero because the source is already there.
	Offset uint32
}

// flagDataDescriptor marks entries whose CRC-32 and sizes follow the data
// instead of being stored in the local header.
const flagDataDescriptor = 0x8

// HasDataDescriptor reports whether the header's CRC-32 and sizes were
// deferred to a data descriptor. Local headers with this flag carry zeros.
func (h FileHeader) HasDataDescriptor() bool {
	return h.Flags&flagDataDescriptor != 0
}

// Modified returns the entry's modification time, interpreted in UTC.
// A zero date yields the zero time.
func (h FileHeader) Modified() time.Time {
	return msDosTimeToTime(h.ModDate, h.ModTime)
}

// Entry is a central directory entry with its name copied out of the
// reader's scratch buffer.
type Entry struct {
	Index  int
	Name   string
	Header FileHeader
}

// IsDir reports whether the entry names a directory.
func (e Entry) IsDir() bool {
	return len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
}

func headerFromCentral(e format.CentralEntry) FileHeader {
	return FileHeader{
		Method:           Method(e.Method),
		Flags:            e.Flags,
		ModTime:          e.ModTime,
		ModDate:          e.ModDate,
		CRC32:            e.CRC32,
		CompressedSize:   e.CompressedSize,
		UncompressedSize: e.UncompressedSize,
		Offset:           e.LocalHeaderOffset,
	}
}

func headerFromLocal(h format.LocalHeader) FileHeader {
	return FileHeader{
		Method:           Method(h.Method),
		Flags:            h.Flags,
		ModTime:          h.ModTime,
		ModDate:          h.ModDate,
		CRC32:            h.CRC32,
		CompressedSize:   h.CompressedSize,
		UncompressedSize: h.UncompressedSize,
	}
}

// msDosTimeToTime converts an MS-DOS date and time to a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	if dosDate == 0 {
		return time.Time{}
	}
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}

// Resolve combines a central directory header with the local header read at
// its offset. The local header must agree on the compression method. When
// the local header defers its CRC-32 and sizes to a data descriptor, the
// central directory values are used. The result has Offset cleared, like
// any header read from a local header.
func Resolve(central, local FileHeader) (FileHeader, error) {
	if central.Method != local.Method {
		return FileHeader{}, fmt.Errorf("%w: method %s, local %s", ErrHeaderMismatch, central.Method, local.Method)
	}
	if local.HasDataDescriptor() {
		local.CRC32 = central.CRC32
		local.CompressedSize = central.CompressedSize
		local.UncompressedSize = central.UncompressedSize
		return local, nil
	}
	if central.CompressedSize != local.CompressedSize || central.UncompressedSize != local.UncompressedSize {
		return FileHeader{}, fmt.Errorf("%w: sizes %d/%d, local %d/%d", ErrHeaderMismatch,
			central.CompressedSize, central.UncompressedSize, local.CompressedSize, local.UncompressedSize)
	}
	return local, nil
}
