package http_test

import (
	"bytes"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unzip"
	unziphttp "github.com/meigma/unzip/http"
	"github.com/meigma/unzip/internal/format"
	"github.com/meigma/unzip/internal/testutil"
)

func serve(t *testing.T, data []byte, etag *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if etag != nil {
			w.Header().Set("ETag", etag.Load().(string))
		}
		nethttp.ServeContent(w, r, "archive.zip", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serve(t, data, nil)

	src, err := unziphttp.NewSource(server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
	assert.Equal(t, "http:"+server.URL, src.SourceID())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(edge[:n]))

	_, err = src.ReadAt(buf, int64(len(data)))
	require.ErrorIs(t, err, io.EOF)
	_, err = src.ReadAt(buf, -1)
	require.Error(t, err)
}

func TestSourceReadRange(t *testing.T) {
	t.Parallel()

	server := serve(t, []byte("0123456789"), nil)
	src, err := unziphttp.NewSource(server.URL)
	require.NoError(t, err)

	rc, err := src.ReadRange(2, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "2345", string(got))

	rc, err = src.ReadRange(8, 100)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "89", string(got))

	_, err = src.ReadRange(10, 1)
	require.ErrorIs(t, err, io.EOF)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := unziphttp.NewSource(server.URL)
	require.ErrorIs(t, err, unziphttp.ErrRangeUnsupported)
}

func TestSourceDetectsChangedRemote(t *testing.T) {
	t.Parallel()

	var etag atomic.Value
	etag.Store(`"v1"`)
	server := serve(t, []byte("versioned content"), &etag)

	src, err := unziphttp.NewSource(server.URL)
	require.NoError(t, err)
	assert.Equal(t, "http:"+server.URL+`@"v1"`, src.SourceID())

	buf := make([]byte, 4)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)

	etag.Store(`"v2"`)
	_, err = src.ReadAt(buf, 0)
	require.Error(t, err, "If-Match must reject the changed object")
}

func TestSourceCustomHeaders(t *testing.T) {
	t.Parallel()

	var seen atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		seen.Add(1)
		nethttp.ServeContent(w, r, "a", time.Time{}, bytes.NewReader([]byte("abc")))
	}))
	t.Cleanup(server.Close)

	_, err := unziphttp.NewSource(server.URL)
	require.Error(t, err)

	src, err := unziphttp.NewSource(server.URL, unziphttp.WithHeader("Authorization", "Bearer token"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), src.Size())
	assert.Positive(t, seen.Load())
}

func TestSourceArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	a := testutil.BuildArchive(t, []testutil.TestEntry{
		{Name: "a.txt", Data: []byte("hello"), Method: format.MethodStore},
		{Name: "dir/b.txt", Data: bytes.Repeat([]byte("remote "), 1000), Method: format.MethodDeflate},
	})
	server := serve(t, a.Bytes, nil)

	src, err := unziphttp.NewSource(server.URL)
	require.NoError(t, err)
	cur := unzip.NewCursor(src)
	defer cur.Close()

	r := unzip.NewReader(cur, unzip.WithBufferSize(512))
	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	data, err := r.ReadEntry(entries[1], nil)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("remote "), 1000), data)
	require.NoError(t, unzip.VerifyChecksum(entries[1].Header, data))
}
