package main

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unzip/internal/format"
	"github.com/meigma/unzip/internal/testutil"
)

func writeArchive(t *testing.T, entries []testutil.TestEntry) (string, []byte) {
	t.Helper()
	a := testutil.BuildArchive(t, entries)
	path := filepath.Join(t.TempDir(), "test.zip")
	require.NoError(t, os.WriteFile(path, a.Bytes, 0o600))
	return path, a.Bytes
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stderr)
	root.SetOut(&stdout)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

var sample = []testutil.TestEntry{
	{Name: "a.txt", Data: []byte("hello"), Method: format.MethodStore},
	{Name: "dir/", Method: format.MethodStore},
	{Name: "dir/b.txt", Data: []byte("world world world"), Method: format.MethodDeflate},
}

func TestList(t *testing.T) {
	t.Parallel()

	path, _ := writeArchive(t, sample)
	out, _, err := run(t, "list", path)
	require.NoError(t, err)

	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "dir/b.txt")
	assert.Contains(t, out, "deflate")
	assert.Contains(t, out, "2025-01-01 13:25")
	assert.Contains(t, out, "22 B in 3 entries")
}

func TestList_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, "list", filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.zip")
	require.NoError(t, os.WriteFile(garbage, bytes.Repeat([]byte("nope"), 20), 0o600))
	_, _, err = run(t, "list", garbage)
	require.ErrorContains(t, err, "end of central directory")

	_, _, err = run(t, "list")
	require.Error(t, err)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	path, _ := writeArchive(t, sample)
	for _, workers := range []string{"1", "3"} {
		dest := t.TempDir()
		out, _, err := run(t, "extract", path, "-d", dest, "--workers", workers)
		require.NoError(t, err)
		assert.Contains(t, out, "extracted 2 files and 1 directory (22 B)")

		got, err := os.ReadFile(filepath.Join(dest, "dir", "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "world world world", string(got))

		out, _, err = run(t, "extract", path, "-d", dest, "--workers", workers)
		require.NoError(t, err)
		assert.Contains(t, out, "skipped 2")
	}
}

func TestExtract_FailedEntriesExitNonZero(t *testing.T) {
	t.Parallel()

	path, _ := writeArchive(t, []testutil.TestEntry{
		{Name: "../escape.txt", Data: []byte("x")},
		{Name: "ok.txt", Data: []byte("ok")},
	})
	dest := t.TempDir()

	out, logs, err := run(t, "extract", path, "-d", dest)
	require.ErrorContains(t, err, "1 entry failed")
	assert.Contains(t, out, "extracted 1 file")
	assert.Contains(t, logs, "insecure path")
}

func TestExtract_MaxSize(t *testing.T) {
	t.Parallel()

	path, _ := writeArchive(t, sample)
	_, _, err := run(t, "extract", path, "-d", t.TempDir(), "--max-size", "10B")
	require.ErrorContains(t, err, "1 entry failed")

	_, _, err = run(t, "extract", path, "-d", t.TempDir(), "--max-size", "lots")
	require.ErrorContains(t, err, "--max-size")
}

func TestExtract_HTTPWithBlockCache(t *testing.T) {
	t.Parallel()

	_, data := writeArchive(t, sample)
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", `"sample"`)
		nethttp.ServeContent(w, r, "test.zip", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	cacheDir := t.TempDir()
	dest := t.TempDir()
	out, _, err := run(t, "extract", server.URL+"/test.zip", "-d", dest, "--workers", "2", "--cache-dir", cacheDir, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "extracted 2 files")

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	blocks, err := filepath.Glob(filepath.Join(cacheDir, "sha256", "*", "*"))
	require.NoError(t, err)
	assert.NotEmpty(t, blocks)

	out, _, err = run(t, "list", server.URL+"/test.zip", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 entries")
}

func TestExtract_Progress(t *testing.T) {
	t.Parallel()

	path, _ := writeArchive(t, sample)
	_, logs, err := run(t, "extract", path, "-d", t.TempDir(), "--progress")
	require.NoError(t, err)
	assert.Contains(t, logs, "[1/3] a.txt")
	assert.Contains(t, logs, "[3/3] dir/b.txt")
}
