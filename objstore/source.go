// Package objstore provides an archive medium backed by an S3-compatible
// object store.
//
// Each ReadAt is a ranged GET pinned to the ETag seen at Open, so an object
// overwritten mid-read fails rather than mixing versions.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("objstore: source closed")

// Source reads an object through ranged GET requests.
type Source struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	key    string
	etag   string
	size   int64
	logger *slog.Logger
	closed atomic.Bool
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// Open stats bucket/key and returns a Source for it. ctx bounds every
// later read as well.
func Open(ctx context.Context, client *minio.Client, bucket, key string, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, errors.New("objstore: nil client")
	}
	s := &Source{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
	}
	for _, opt := range opts {
		opt(s)
	}

	info, err := client.StatObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	if info.Size < 0 {
		return nil, fmt.Errorf("stat s3://%s/%s: unknown size", bucket, key)
	}
	s.size = info.Size
	s.etag = info.ETag
	s.log().Debug("opened object", "bucket", bucket, "key", key, "size", s.size, "etag", s.etag)
	return s, nil
}

// Size returns the object size observed at Open.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies the object version for block caching.
func (s *Source) SourceID() string {
	return "s3://" + s.bucket + "/" + s.key + "@" + s.etag
}

// ReadAt reads len(p) bytes at off. Reads past the end return the available
// bytes and io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), s.size-off)

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+want-1); err != nil {
		return 0, err
	}
	if s.etag != "" {
		if err := opts.SetMatchETag(s.etag); err != nil {
			return 0, err
		}
	}
	obj, err := s.client.GetObject(s.ctx, s.bucket, s.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	n, err := io.ReadFull(obj, p[:want])
	if err != nil {
		return n, fmt.Errorf("read s3://%s/%s at %d: %w", s.bucket, s.key, off, err)
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Close marks the source closed. The client is owned by the caller.
func (s *Source) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// ParseURL splits "s3://bucket/key" into bucket and key.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("parse %q: scheme must be s3", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("parse %q: want s3://bucket/key", raw)
	}
	return bucket, key, nil
}

// NewClient connects to an S3-compatible endpoint with credentials taken
// from the environment (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY or
// MINIO_ACCESS_KEY / MINIO_SECRET_KEY). Without credentials requests are
// anonymous. A non-empty region skips bucket location lookups.
func NewClient(endpoint string, secure bool, region string) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds: credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		}),
		Secure: secure,
		Region: region,
	})
}
