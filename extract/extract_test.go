package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unzip"
	"github.com/meigma/unzip/internal/format"
	"github.com/meigma/unzip/internal/testutil"
)

func readerFor(t *testing.T, data []byte) *unzip.Reader {
	t.Helper()
	src := unzip.FromBytes(data)
	t.Cleanup(func() { _ = src.Close() })
	return unzip.NewReader(src)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "a.txt", Data: []byte("hello"), Method: format.MethodStore},
		{Name: "dir/", Method: format.MethodStore},
		{Name: "dir/b.txt", Data: []byte("world world world"), Method: format.MethodDeflate},
		{Name: "deep/nested/c.txt", Data: bytes.Repeat([]byte("c"), 10_000), Method: format.MethodDeflate, DataDescriptor: true},
		{Name: "empty/", Method: format.MethodStore},
	})
	dest := filepath.Join(t.TempDir(), "out")

	stats, err := New(dest).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 3, Dirs: 2, Bytes: 5 + 17 + 10_000}, stats)

	assert.Equal(t, "hello", readFile(t, filepath.Join(dest, "a.txt")))
	assert.Equal(t, "world world world", readFile(t, filepath.Join(dest, "dir", "b.txt")))
	assert.Equal(t, string(bytes.Repeat([]byte("c"), 10_000)), readFile(t, filepath.Join(dest, "deep", "nested", "c.txt")))
	info, err := os.Stat(filepath.Join(dest, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	leftovers, err := filepath.Glob(filepath.Join(dest, "*", ".unzip-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files must be renamed or removed")
}

func TestExtract_RejectsInsecurePaths(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "../evil.txt", Data: []byte("x")},
		{Name: "/abs.txt", Data: []byte("x")},
		{Name: "ok/../../escape.txt", Data: []byte("x")},
		{Name: `win\..\evil.txt`, Data: []byte("x")},
		{Name: "good.txt", Data: []byte("fine")},
	})
	base := t.TempDir()
	dest := filepath.Join(base, "out")

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	stats, err := New(dest, WithLogger(logger)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Failed)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, "fine", readFile(t, filepath.Join(dest, "good.txt")))

	_, err = os.Stat(filepath.Join(base, "evil.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(base, "escape.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, logs.String(), "insecure path")
	assert.Contains(t, logs.String(), "entry not extracted")
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		wantDir bool
		wantErr bool
	}{
		{name: "a.txt", want: "a.txt"},
		{name: "dir/", want: "dir", wantDir: true},
		{name: "dir/sub/file", want: filepath.Join("dir", "sub", "file")},
		{name: "", wantErr: true},
		{name: "/", wantErr: true},
		{name: "./a", wantErr: true},
		{name: "a//b", wantErr: true},
		{name: "../a", wantErr: true},
		{name: "/etc/passwd", wantErr: true},
		{name: `a\b`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, isDir, err := localPath(tt.name)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInsecurePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDir, isDir)
		})
	}
}

func TestExtract_Overwrite(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{{Name: "a.txt", Data: []byte("from archive")}})
	dest := t.TempDir()
	target := filepath.Join(dest, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o600))

	stats, err := New(dest).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Equal(t, "existing", readFile(t, target))

	stats, err = New(dest, WithOverwrite(true)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, "from archive", readFile(t, target))
}

func TestExtract_Checksum(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "bad.txt", Data: []byte("payload"), Method: format.MethodDeflate},
	})
	// Flip the CRC-32 in the local header, which is what Resolve keeps.
	a.Bytes[a.LocalOffsets[0]+14] ^= 0xff

	dest := t.TempDir()
	stats, err := New(dest).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	_, err = os.Stat(filepath.Join(dest, "bad.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	stats, err = New(dest, WithVerifyChecksum(false)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, "payload", readFile(t, filepath.Join(dest, "bad.txt")))
}

func TestExtract_MaxFileSize(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "small", Data: []byte("1234")},
		{Name: "large", Data: bytes.Repeat([]byte("z"), 100), Method: format.MethodDeflate},
	})
	dest := t.TempDir()

	stats, err := New(dest, WithMaxFileSize(50)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Failed)
	_, err = os.Stat(filepath.Join(dest, "large"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_LocalNameMismatch(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "first.txt", Data: []byte("1")},
		{Name: "second.txt", Data: []byte("2")},
	})
	a.Bytes[a.LocalOffsets[0]+format.LocalHeaderLen] = 'F'
	dest := t.TempDir()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	stats, err := New(dest, WithLogger(logger)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1, Failed: 1, Bytes: 1}, stats)
	assert.Equal(t, "2", readFile(t, filepath.Join(dest, "second.txt")))
	assert.Contains(t, logs.String(), "first.txt")
}

func TestExtract_DirectoryFailureAborts(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "one.txt", Data: []byte("1")},
		{Name: "two.txt", Data: []byte("2")},
		{Name: "three.txt", Data: []byte("3")},
	})
	a.Bytes[a.CentralOffsets[1]] = 0
	dest := t.TempDir()

	stats, err := New(dest).Extract(readerFor(t, a.Bytes))
	var dirErr *unzip.DirectoryError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, 1, dirErr.Index)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, "1", readFile(t, filepath.Join(dest, "one.txt")))
}

func TestExtract_EmptyArchive(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir()).Extract(readerFor(t, nil))
	require.ErrorIs(t, err, unzip.ErrEmptyArchive)
}

func TestExtract_PreserveTimes(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{{Name: "dated.txt", Data: []byte("d")}})
	dest := t.TempDir()

	_, err := New(dest, WithPreserveTimes(true)).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dest, "dated.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(time.Date(2025, time.January, 1, 13, 25, 30, 0, time.UTC)))
}

func TestParallel(t *testing.T) {
	t.Parallel()

	var files []testutil.TestEntry
	want := map[string][]byte{}
	for i := range 40 {
		name := fmt.Sprintf("d%d/file-%02d.bin", i%4, i)
		data := testutil.Incompressible(1000+i*37, uint32(i+1))
		method := format.MethodDeflate
		if i%3 == 0 {
			method = format.MethodStore
		}
		files = append(files, testutil.TestEntry{Name: name, Data: data, Method: method})
		want[name] = data
	}
	files = append(files, testutil.TestEntry{Name: "../escape", Data: []byte("x")})
	a := testutil.BuildArchive(t, files)

	open := func() (unzip.ByteSource, error) {
		return unzip.FromBytes(a.Bytes), nil
	}

	for _, workers := range []int{1, 4, 100} {
		dest := t.TempDir()
		stats, err := Parallel(context.Background(), open, dest, workers,
			WithMaxInFlightBytes(4096),
			WithReaderOptions(unzip.WithBufferSize(512)))
		require.NoError(t, err)
		assert.Equal(t, 40, stats.Files, "workers=%d", workers)
		assert.Equal(t, 1, stats.Failed, "workers=%d", workers)

		for name, data := range want {
			got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got), "%s with %d workers", name, workers)
		}
	}
}

func TestParallel_OpenFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no archive")
	_, err := Parallel(context.Background(), func() (unzip.ByteSource, error) {
		return nil, boom
	}, t.TempDir(), 2)
	require.ErrorIs(t, err, boom)
}

func TestParallel_Cancelled(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{{Name: "a", Data: []byte("a")}, {Name: "b", Data: []byte("b")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parallel(ctx, func() (unzip.ByteSource, error) {
		return unzip.FromBytes(a.Bytes), nil
	}, t.TempDir(), 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtract_Progress(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "a.txt", Data: []byte("hello")},
		{Name: "../bad", Data: []byte("x")},
		{Name: "b.txt", Data: []byte("world!")},
	})

	var events []ProgressEvent
	_, err := New(t.TempDir(), WithProgress(func(e ProgressEvent) {
		events = append(events, e)
	})).Extract(readerFor(t, a.Bytes))
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, StageListing, events[0].Stage)
	assert.Equal(t, 3, events[0].FilesTotal)
	last := events[3]
	assert.Equal(t, StageExtracting, last.Stage)
	assert.Equal(t, "b.txt", last.Path)
	assert.Equal(t, 3, last.FilesDone)
	assert.Equal(t, uint64(12), last.BytesDone)
	assert.Equal(t, "extracting", last.Stage.String())
}

func TestParallel_Progress(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "a", Data: []byte("aa")},
		{Name: "b", Data: []byte("bbb")},
		{Name: "c", Data: []byte("c")},
	})

	var last ProgressEvent
	calls := 0
	_, err := Parallel(context.Background(), func() (unzip.ByteSource, error) {
		return unzip.FromBytes(a.Bytes), nil
	}, t.TempDir(), 3, WithProgress(func(e ProgressEvent) {
		calls++
		last = e
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, last.FilesDone)
	assert.Equal(t, uint64(6), last.BytesTotal)
	assert.Equal(t, uint64(6), last.BytesDone)
}
