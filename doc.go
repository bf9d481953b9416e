// Package unzip reads ZIP archives from a random-access byte source.
//
// The package exposes the four steps of reading an archive as separate
// operations on a [Reader]:
//
//   - [Reader.ReadEndRecord] locates the end of central directory record by
//     scanning the tail of the archive backward.
//   - [Reader.WalkCentralDirectory] calls a [WalkFunc] for every entry.
//   - [Reader.ReadLocalHeader] parses the header in front of an entry's data.
//   - [Reader.ReadData] decompresses stored or DEFLATE data into a
//     caller-owned buffer.
//
// Reading a single entry:
//
//	src, err := unzip.OpenFile("archive.zip")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	r := unzip.NewReader(src)
//	end, err := r.ReadEndRecord()
//	if err != nil {
//	    return err
//	}
//	err = r.WalkCentralDirectory(end, func(src unzip.ByteSource, i int, hdr *unzip.FileHeader, name []byte) bool {
//	    fmt.Printf("%d %s %d\n", i, name, hdr.UncompressedSize)
//	    return true
//	})
//
// [Reader.Entries], [Reader.List] and [Reader.ReadEntry] are conveniences
// built on the same operations.
//
// Only single-volume archives with store (0) or DEFLATE (8) entries are
// supported. ZIP64, encryption and writing archives are not. Entry names are
// returned as stored; callers that write to disk must sanitize them (see the
// extract package).
//
// A [ByteSource] is any sequential reader with a movable cursor. [Cursor]
// adapts any [RandomAccess] medium: local files ([OpenFile]), memory
// ([FromBytes]), HTTP range requests (package http), S3-compatible object
// stores (package objstore), and block-cached wrappers (package cache/disk).
package unzip
