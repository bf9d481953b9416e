package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/meigma/unzip"
	"github.com/meigma/unzip/cache"
	"github.com/meigma/unzip/cache/disk"
	unziphttp "github.com/meigma/unzip/http"
	"github.com/meigma/unzip/objstore"
)

// archive hands out cursors over one archive. Remote media are opened once
// and shared by every cursor; local files are reopened per cursor.
type archive struct {
	path   string
	medium unzip.RandomAccess
	closer io.Closer
}

// open returns a new cursor. Closing it does not close a shared medium.
func (a *archive) open() (unzip.ByteSource, error) {
	if a.medium == nil {
		return unzip.OpenFile(a.path)
	}
	return unzip.NewCursor(shared{a.medium}), nil
}

func (a *archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// shared hides the medium's Close method from cursors.
type shared struct {
	unzip.RandomAccess
}

func openArchive(ctx context.Context, opts *globalOptions, target string) (*archive, error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		src, err := unziphttp.NewSource(target,
			unziphttp.WithContext(ctx),
			unziphttp.WithLogger(opts.logger))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", target, err)
		}
		return remote(opts, src)

	case strings.HasPrefix(target, "s3://"):
		bucket, key, err := objstore.ParseURL(target)
		if err != nil {
			return nil, err
		}
		client, err := objstore.NewClient(opts.s3Endpoint, !opts.s3Insecure, opts.s3Region)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		src, err := objstore.Open(ctx, client, bucket, key, objstore.WithLogger(opts.logger))
		if err != nil {
			return nil, err
		}
		return remote(opts, src)

	default:
		return &archive{path: target}, nil
	}
}

// remote wraps a network medium in the block cache when one is configured.
func remote(opts *globalOptions, src cache.Medium) (*archive, error) {
	a := &archive{medium: src}
	if closer, ok := src.(io.Closer); ok {
		a.closer = closer
	}
	if opts.cacheDir == "" {
		return a, nil
	}

	maxBytes, err := humanize.ParseBytes(opts.cacheMax)
	if err != nil {
		_ = a.Close() //nolint:errcheck // flag error takes precedence
		return nil, fmt.Errorf("--cache-max: %w", err)
	}
	bc, err := disk.NewBlockCache(opts.cacheDir,
		disk.WithMaxBytes(int64(maxBytes)), //nolint:gosec // flag values fit in int64
		disk.WithLogger(opts.logger))
	if err != nil {
		_ = a.Close() //nolint:errcheck // cache error takes precedence
		return nil, fmt.Errorf("block cache: %w", err)
	}
	wrapped, err := bc.Wrap(src)
	if err != nil {
		_ = a.Close() //nolint:errcheck // cache error takes precedence
		return nil, err
	}
	a.medium = wrapped
	return a, nil
}
