package unzip

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/meigma/unzip/internal/format"
	"github.com/meigma/unzip/internal/testutil"
)

var (
	benchSinkBytes   []byte
	benchSinkEntries []Entry
)

type benchPattern string

const (
	benchPatternCompressible benchPattern = "compressible"
	benchPatternRandom       benchPattern = "random"
)

func benchData(pattern benchPattern, size int) []byte {
	if pattern == benchPatternRandom {
		return testutil.Incompressible(size, 7)
	}
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), size/44+1)[:size]
}

func BenchmarkList(b *testing.B) {
	for _, count := range []int{16, 1024, 16384} {
		b.Run(fmt.Sprintf("entries=%d", count), func(b *testing.B) {
			entries := make([]testutil.TestEntry, count)
			for i := range entries {
				entries[i] = testutil.TestEntry{Name: fmt.Sprintf("dir%02d/file%06d.txt", i%16, i)}
			}
			a := testutil.BuildArchive(b, entries)

			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				got, err := NewReader(FromBytes(a.Bytes)).List()
				if err != nil {
					b.Fatal(err)
				}
				benchSinkEntries = got
			}
		})
	}
}

func BenchmarkReadData(b *testing.B) {
	cases := []struct {
		name    string
		size    int
		method  uint16
		pattern benchPattern
		bufSize int
	}{
		{name: "size=64k/store", size: 64 << 10, method: format.MethodStore, pattern: benchPatternRandom},
		{name: "size=1m/store", size: 1 << 20, method: format.MethodStore, pattern: benchPatternRandom},
		{name: "size=1m/deflate/compressible", size: 1 << 20, method: format.MethodDeflate, pattern: benchPatternCompressible},
		{name: "size=1m/deflate/random", size: 1 << 20, method: format.MethodDeflate, pattern: benchPatternRandom},
		{name: "size=1m/deflate/compressible/buf=4k", size: 1 << 20, method: format.MethodDeflate, pattern: benchPatternCompressible, bufSize: 4 << 10},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			a := testutil.BuildArchive(b, []testutil.TestEntry{
				{Name: "payload", Data: benchData(bc.pattern, bc.size), Method: bc.method},
			})
			var opts []Option
			if bc.bufSize > 0 {
				opts = append(opts, WithBufferSize(bc.bufSize))
			}
			r := NewReader(FromBytes(a.Bytes), opts...)
			entries, err := r.List()
			if err != nil {
				b.Fatal(err)
			}
			dst := make([]byte, bc.size)

			b.SetBytes(int64(bc.size))
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				got, err := r.ReadEntry(entries[0], dst)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkBytes = got
			}
		})
	}
}
