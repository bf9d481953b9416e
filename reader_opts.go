package unzip

import "log/slog"

// Option configures a Reader.
type Option func(*Reader)

// WithBufferSize sets the scratch buffer size (default: DefaultBufferSize).
// It bounds both the trailing window searched for the end record and the
// size of each compressed read. Values below MinBufferSize are raised.
func WithBufferSize(n int) Option {
	return func(r *Reader) {
		r.bufferSize = n
	}
}

// WithMaxNameLen sets the longest entry name the central directory walk
// accepts (default: DefaultMaxNameLen). Longer names abort the walk with
// ErrNameTooLong.
func WithMaxNameLen(n int) Option {
	return func(r *Reader) {
		r.maxNameLen = n
	}
}

// WithInflatePool shares a decoder pool between readers.
func WithInflatePool(p *InflatePool) Option {
	return func(r *Reader) {
		r.pool = p
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}
