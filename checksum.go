package unzip

import (
	"fmt"
	"hash/crc32"
)

// VerifyChecksum compares the CRC-32 (IEEE) of data with hdr.CRC32.
//
// ReadData does not verify checksums; callers that want integrity checking
// call this on the decompressed bytes.
func VerifyChecksum(hdr FileHeader, data []byte) error {
	if got := crc32.ChecksumIEEE(data); got != hdr.CRC32 {
		return fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, hdr.CRC32)
	}
	return nil
}
