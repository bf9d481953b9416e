package extract

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/unzip"
)

// Opener opens a fresh ByteSource over the same archive. Parallel calls it
// once for the listing and once per worker, since a ByteSource has a single
// cursor and cannot be shared.
type Opener func() (unzip.ByteSource, error)

// Parallel extracts the archive behind open into destDir with the given
// number of workers. See (*Extractor).ExtractParallel.
func Parallel(ctx context.Context, open Opener, destDir string, workers int, opts ...Option) (Stats, error) {
	return New(destDir, opts...).ExtractParallel(ctx, open, workers)
}

// ExtractParallel lists the central directory once, then extracts entries
// on workers goroutines, each with its own ByteSource and Reader. DEFLATE
// decoders are pooled across workers.
//
// As with Extract, per-entry failures are logged and counted. Failing to
// open a source, list the archive, or a cancelled ctx ends extraction with
// an error.
func (x *Extractor) ExtractParallel(ctx context.Context, open Opener, workers int) (Stats, error) {
	var stats Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	workers = max(workers, 1)

	pool := unzip.NewInflatePool()
	readerOpts := append([]unzip.Option{unzip.WithInflatePool(pool), unzip.WithLogger(x.logger)}, x.readerOpts...)

	entries, err := list(open, readerOpts)
	if err != nil {
		return stats, err
	}
	root, err := x.openRoot()
	if err != nil {
		return stats, err
	}
	defer root.Close()

	var budget *semaphore.Weighted
	if x.maxInFlight > 0 {
		budget = semaphore.NewWeighted(x.maxInFlight)
	}

	var total uint64
	for _, e := range entries {
		total += uint64(e.Header.UncompressedSize)
	}
	progress := newTracker(x.progress, len(entries), total)

	var mu sync.Mutex
	jobs := make(chan unzip.Entry)
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(jobs)
		for _, e := range entries {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for range min(workers, max(len(entries), 1)) {
		eg.Go(func() error {
			src, err := open()
			if err != nil {
				return fmt.Errorf("extract: open source: %w", err)
			}
			defer src.Close()
			r := unzip.NewReader(src, readerOpts...)

			var nameBuf []byte
			for e := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				weight := min(int64(e.Header.UncompressedSize), x.maxInFlight)
				if budget != nil {
					if err := budget.Acquire(ctx, weight); err != nil {
						return err
					}
				}
				o, err := x.extractEntry(root, r, e.Header, e.Name, &nameBuf)
				if budget != nil {
					budget.Release(weight)
				}

				mu.Lock()
				if err != nil {
					x.fail(e.Index, e.Name, err)
					stats.Failed++
				} else {
					stats.record(o, e.Header.UncompressedSize)
				}
				progress.done(e.Name, e.Header.UncompressedSize)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return stats, err
	}
	x.log().Debug("parallel extraction finished",
		"workers", workers, "files", stats.Files, "dirs", stats.Dirs,
		"skipped", stats.Skipped, "failed", stats.Failed, "bytes", stats.Bytes)
	return stats, nil
}

func list(open Opener, opts []unzip.Option) ([]unzip.Entry, error) {
	src, err := open()
	if err != nil {
		return nil, fmt.Errorf("extract: open source: %w", err)
	}
	defer src.Close()
	return unzip.NewReader(src, opts...).List()
}
