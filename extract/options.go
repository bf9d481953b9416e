package extract

import (
	"log/slog"

	"github.com/meigma/unzip"
)

// DefaultMaxFileSize is the default limit on a single entry's uncompressed size.
const DefaultMaxFileSize = 256 << 20

// Option configures an Extractor.
type Option func(*Extractor)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) Option {
	return func(x *Extractor) {
		x.sink.overwrite = overwrite
	}
}

// WithVerifyChecksum controls CRC-32 verification of extracted data.
// Verification is on by default.
func WithVerifyChecksum(verify bool) Option {
	return func(x *Extractor) {
		x.verify = verify
	}
}

// WithMaxFileSize refuses entries whose uncompressed size exceeds n bytes.
// Zero disables the limit.
func WithMaxFileSize(n uint64) Option {
	return func(x *Extractor) {
		x.maxFileSize = n
	}
}

// WithPreserveTimes sets each file's modification time from the archive.
func WithPreserveTimes(preserve bool) Option {
	return func(x *Extractor) {
		x.sink.preserveTimes = preserve
	}
}

// WithMaxInFlightBytes bounds the uncompressed bytes held in memory across
// parallel workers. Zero means no bound.
func WithMaxInFlightBytes(n int64) Option {
	return func(x *Extractor) {
		x.maxInFlight = n
	}
}

// WithReaderOptions sets options for the readers Parallel creates.
func WithReaderOptions(opts ...unzip.Option) Option {
	return func(x *Extractor) {
		x.readerOpts = append(x.readerOpts, opts...)
	}
}

// WithLogger sets the logger. Per-entry failures are logged at warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}
