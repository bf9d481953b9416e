// Package format decodes and encodes the fixed-size little-endian records
// of the ZIP container: the end of central directory record, central
// directory entries, and local file headers.
//
// Decoders work on byte slices that already hold the fixed prefix of a
// record. Variable-length trailers (names, extra fields, comments) are left
// to the caller, which decides whether to read or skip them.
package format

import (
	"encoding/binary"
	"errors"

	"github.com/meigma/unzip/internal/sizing"
)

// Record signatures. Each begins with the two byte marker "PK".
const (
	CentralEntrySignature uint32 = 0x02014b50
	LocalHeaderSignature  uint32 = 0x04034b50
	EndRecordSignature    uint32 = 0x06054b50
)

// Sizes of the fixed prefixes, excluding variable-length trailers.
const (
	EndRecordLen    = 22
	CentralEntryLen = 46
	LocalHeaderLen  = 30
)

// Compression methods understood by the reader.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// ErrShortRecord is returned when a buffer is smaller than the record it should hold.
var ErrShortRecord = errors.New("format: short record")

// EndRecord is the end of central directory record.
type EndRecord struct {
	Signature              uint32
	DiskNumber             uint16 // number of this disk
	CentralDirectoryDisk   uint16 // disk where the central directory starts
	NumEntriesThisDisk     uint16
	NumEntries             uint16
	CentralDirectorySize   uint32
	CentralDirectoryOffset uint32 // relative to the start of the archive
	CommentLength          uint16
}

// CentralEntry is the fixed prefix of a central directory file header.
type CentralEntry struct {
	Signature          uint32
	VersionMadeBy      uint16
	VersionNeeded      uint16
	Flags              uint16
	Method             uint16
	ModTime            uint16
	ModDate            uint16
	CRC32              uint32
	CompressedSize     uint32
	UncompressedSize   uint32
	NameLength         uint16
	ExtraLength        uint16
	CommentLength      uint16
	DiskNumberStart    uint16
	InternalAttributes uint16
	ExternalAttributes uint32
	LocalHeaderOffset  uint32
}

// TrailerLength returns the number of bytes that follow the name: the extra
// field and the file comment.
func (e CentralEntry) TrailerLength() int64 {
	return int64(e.ExtraLength) + int64(e.CommentLength)
}

// LocalHeader is the fixed prefix of a local file header.
type LocalHeader struct {
	Signature        uint32
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLength       uint16
	ExtraLength      uint16
}

// DecodeEndRecord decodes an end of central directory record from buf.
// The signature is decoded but not checked.
func DecodeEndRecord(buf []byte) (EndRecord, error) {
	if len(buf) < EndRecordLen {
		return EndRecord{}, ErrShortRecord
	}
	return EndRecord{
		Signature:              binary.LittleEndian.Uint32(buf[0:4]),
		DiskNumber:             binary.LittleEndian.Uint16(buf[4:6]),
		CentralDirectoryDisk:   binary.LittleEndian.Uint16(buf[6:8]),
		NumEntriesThisDisk:     binary.LittleEndian.Uint16(buf[8:10]),
		NumEntries:             binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirectorySize:   binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirectoryOffset: binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:          binary.LittleEndian.Uint16(buf[20:22]),
	}, nil
}

// DecodeCentralEntry decodes the fixed prefix of a central directory entry.
// The signature is decoded but not checked.
func DecodeCentralEntry(buf []byte) (CentralEntry, error) {
	if len(buf) < CentralEntryLen {
		return CentralEntry{}, ErrShortRecord
	}
	return CentralEntry{
		Signature:          binary.LittleEndian.Uint32(buf[0:4]),
		VersionMadeBy:      binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeeded:      binary.LittleEndian.Uint16(buf[6:8]),
		Flags:              binary.LittleEndian.Uint16(buf[8:10]),
		Method:             binary.LittleEndian.Uint16(buf[10:12]),
		ModTime:            binary.LittleEndian.Uint16(buf[12:14]),
		ModDate:            binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:              binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:     binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:   binary.LittleEndian.Uint32(buf[24:28]),
		NameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraLength:        binary.LittleEndian.Uint16(buf[30:32]),
		CommentLength:      binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:    binary.LittleEndian.Uint16(buf[34:36]),
		InternalAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:  binary.LittleEndian.Uint32(buf[42:46]),
	}, nil
}

// DecodeLocalHeader decodes the fixed prefix of a local file header.
// The signature is decoded but not checked.
func DecodeLocalHeader(buf []byte) (LocalHeader, error) {
	if len(buf) < LocalHeaderLen {
		return LocalHeader{}, ErrShortRecord
	}
	return LocalHeader{
		Signature:        binary.LittleEndian.Uint32(buf[0:4]),
		VersionNeeded:    binary.LittleEndian.Uint16(buf[4:6]),
		Flags:            binary.LittleEndian.Uint16(buf[6:8]),
		Method:           binary.LittleEndian.Uint16(buf[8:10]),
		ModTime:          binary.LittleEndian.Uint16(buf[10:12]),
		ModDate:          binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:            binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[22:26]),
		NameLength:       binary.LittleEndian.Uint16(buf[26:28]),
		ExtraLength:      binary.LittleEndian.Uint16(buf[28:30]),
	}, nil
}

// FindEndRecord scans window backward for the end record signature and
// returns the offset of the rightmost candidate whose declared comment fits
// inside the window. It returns -1 if there is none.
func FindEndRecord(window []byte) int {
	for p := len(window) - EndRecordLen; p >= 0; p-- {
		if binary.LittleEndian.Uint32(window[p:p+4]) != EndRecordSignature {
			continue
		}
		commentLen := uint64(binary.LittleEndian.Uint16(window[p+20 : p+22]))
		if !sizing.Within(uint64(p), EndRecordLen+commentLen, int64(len(window))) {
			continue
		}
		return p
	}
	return -1
}
