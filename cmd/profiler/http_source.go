package main

import (
	"bytes"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/unzip"
	"github.com/meigma/unzip/cache/disk"
	"github.com/meigma/unzip/extract"
	unziphttp "github.com/meigma/unzip/http"
)

// newOpener returns an Opener for the configured source and a function
// releasing whatever the source holds open.
func newOpener(cfg config, dir string, data []byte) (extract.Opener, func(), error) {
	switch cfg.source {
	case "memory":
		return func() (unzip.ByteSource, error) {
			return unzip.FromBytes(data), nil
		}, func() {}, nil

	case "file":
		path := filepath.Join(dir, "archive.zip")
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return nil, nil, err
		}
		return func() (unzip.ByteSource, error) {
			return unzip.OpenFile(path)
		}, func() {}, nil

	case "http":
		return newHTTPOpener(cfg, data)

	default:
		return nil, nil, fmt.Errorf("unknown source: %s", cfg.source)
	}
}

func newHTTPOpener(cfg config, data []byte) (extract.Opener, func(), error) {
	url := cfg.dataURL
	cleanup := func() {}
	if url == "" || url == "local" {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			w.Header().Set("ETag", `"profiler"`)
			nethttp.ServeContent(w, r, "archive.zip", time.Time{}, bytes.NewReader(data))
		}))
		url = server.URL + "/archive.zip"
		cleanup = server.Close
	}

	source, err := unziphttp.NewSource(url, unziphttp.WithClient(newHTTPClient(cfg)))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var medium unzip.RandomAccess = source
	if cfg.cacheDir != "" {
		bc, err := disk.NewBlockCache(cfg.cacheDir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		wrapped, err := bc.Wrap(source)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		medium = wrapped
	}

	return func() (unzip.ByteSource, error) {
		return unzip.NewCursor(noClose{medium}), nil
	}, cleanup, nil
}

// noClose lets many cursors share one medium.
type noClose struct {
	unzip.RandomAccess
}

func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.dataHTTPLatency > 0 || cfg.dataHTTPBPS > 0 {
		transport = &httpThrottleRoundTripper{
			base:           transport,
			latency:        cfg.dataHTTPLatency,
			bytesPerSecond: cfg.dataHTTPBPS,
		}
	}
	return &nethttp.Client{Transport: transport}
}

type httpThrottleRoundTripper struct {
	base           nethttp.RoundTripper
	latency        time.Duration
	bytesPerSecond int64
}

func (rt *httpThrottleRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if rt.latency > 0 {
		time.Sleep(rt.latency)
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.bytesPerSecond > 0 && resp.Body != nil {
		resp.Body = &throttleReadCloser{
			rc:             resp.Body,
			bytesPerSecond: rt.bytesPerSecond,
			start:          time.Now(),
		}
	}
	return resp, nil
}

type throttleReadCloser struct {
	rc             io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	readBytes      int64
}

func (tr *throttleReadCloser) Read(p []byte) (int, error) {
	n, err := tr.rc.Read(p)
	if n > 0 {
		tr.readBytes += int64(n)
		expected := time.Duration(float64(tr.readBytes) / float64(tr.bytesPerSecond) * float64(time.Second))
		if elapsed := time.Since(tr.start); expected > elapsed {
			time.Sleep(expected - elapsed)
		}
	}
	return n, err
}

func (tr *throttleReadCloser) Close() error {
	return tr.rc.Close()
}

// parseBytesPerSecond accepts humanized sizes with an optional rate suffix,
// such as "10MB", "512KiB/s" or "1GBps".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	for _, suffix := range []string{"/s", "ps"} {
		text = strings.TrimSuffix(text, suffix)
	}
	n, err := humanize.ParseBytes(text)
	if err != nil || n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return int64(n), nil
}
