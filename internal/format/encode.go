package format

import "encoding/binary"

// Append encodes the record, including its signature field as set, and
// appends it to b.
func (r EndRecord) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, r.Signature)
	b = binary.LittleEndian.AppendUint16(b, r.DiskNumber)
	b = binary.LittleEndian.AppendUint16(b, r.CentralDirectoryDisk)
	b = binary.LittleEndian.AppendUint16(b, r.NumEntriesThisDisk)
	b = binary.LittleEndian.AppendUint16(b, r.NumEntries)
	b = binary.LittleEndian.AppendUint32(b, r.CentralDirectorySize)
	b = binary.LittleEndian.AppendUint32(b, r.CentralDirectoryOffset)
	return binary.LittleEndian.AppendUint16(b, r.CommentLength)
}

// Append encodes the fixed prefix of the entry and appends it to b.
// Name, extra field and comment are not written.
func (e CentralEntry) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, e.Signature)
	b = binary.LittleEndian.AppendUint16(b, e.VersionMadeBy)
	b = binary.LittleEndian.AppendUint16(b, e.VersionNeeded)
	b = binary.LittleEndian.AppendUint16(b, e.Flags)
	b = binary.LittleEndian.AppendUint16(b, e.Method)
	b = binary.LittleEndian.AppendUint16(b, e.ModTime)
	b = binary.LittleEndian.AppendUint16(b, e.ModDate)
	b = binary.LittleEndian.AppendUint32(b, e.CRC32)
	b = binary.LittleEndian.AppendUint32(b, e.CompressedSize)
	b = binary.LittleEndian.AppendUint32(b, e.UncompressedSize)
	b = binary.LittleEndian.AppendUint16(b, e.NameLength)
	b = binary.LittleEndian.AppendUint16(b, e.ExtraLength)
	b = binary.LittleEndian.AppendUint16(b, e.CommentLength)
	b = binary.LittleEndian.AppendUint16(b, e.DiskNumberStart)
	b = binary.LittleEndian.AppendUint16(b, e.InternalAttributes)
	b = binary.LittleEndian.AppendUint32(b, e.ExternalAttributes)
	return binary.LittleEndian.AppendUint32(b, e.LocalHeaderOffset)
}

// Append encodes the fixed prefix of the header and appends it to b.
// Name and extra field are not written.
func (h LocalHeader) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Signature)
	b = binary.LittleEndian.AppendUint16(b, h.VersionNeeded)
	b = binary.LittleEndian.AppendUint16(b, h.Flags)
	b = binary.LittleEndian.AppendUint16(b, h.Method)
	b = binary.LittleEndian.AppendUint16(b, h.ModTime)
	b = binary.LittleEndian.AppendUint16(b, h.ModDate)
	b = binary.LittleEndian.AppendUint32(b, h.CRC32)
	b = binary.LittleEndian.AppendUint32(b, h.CompressedSize)
	b = binary.LittleEndian.AppendUint32(b, h.UncompressedSize)
	b = binary.LittleEndian.AppendUint16(b, h.NameLength)
	return binary.LittleEndian.AppendUint16(b, h.ExtraLength)
}
