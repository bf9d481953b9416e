// Command profiler builds a synthetic ZIP archive and drives the reader
// against it in a loop, optionally under CPU, heap, trace or wall-clock
// profiling.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/unzip"
	"github.com/meigma/unzip/extract"
)

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	compression     string
	pattern         string
	source          string
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	fgProfile       string
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	cacheDir        string
	bufferSize      int
	workers         int
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      uint64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes   []byte
	sinkEntries []unzip.Entry
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	data, err := buildArchive(cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}
	open, closeSource, err := newOpener(cfg, dir, data)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSource()

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, open, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s source=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		cfg.source,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, open extract.Opener, rootDir string) (profileStats, error) {
	var readerOpts []unzip.Option
	if cfg.bufferSize > 0 {
		readerOpts = append(readerOpts, unzip.WithBufferSize(cfg.bufferSize))
	}
	src, err := open()
	if err != nil {
		return profileStats{}, err
	}
	defer src.Close()
	r := unzip.NewReader(src, readerOpts...)

	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "list":
		for shouldContinue() {
			entries, err := r.List()
			if err != nil {
				return profileStats{}, err
			}
			sinkEntries = entries
			ops++
		}

	case "readentry":
		entries, err := r.List()
		if err != nil {
			return profileStats{}, err
		}
		if len(entries) == 0 {
			return profileStats{}, errors.New("archive has no entries")
		}
		dst := make([]byte, cfg.fileSize)
		rng := rand.New(rand.NewPCG(cfg.randomSeed, cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		start = time.Now()
		for shouldContinue() {
			e := pickEntry(entries, ops, rng, cfg.readRandom)
			content, err := r.ReadEntry(e, dst)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "extract":
		total := int64(cfg.files) * int64(cfg.fileSize)
		for shouldContinue() {
			destDir := filepath.Join(rootDir, "extract", fmt.Sprintf("iter-%d", ops))
			x := extract.New(destDir, extract.WithReaderOptions(readerOpts...))

			var stats extract.Stats
			if cfg.workers > 1 {
				stats, err = x.ExtractParallel(context.Background(), open, cfg.workers)
			} else {
				stats, err = x.Extract(r)
			}
			if err != nil {
				return profileStats{}, err
			}
			if stats.Failed > 0 {
				return profileStats{}, fmt.Errorf("%d entries failed", stats.Failed)
			}
			if err := os.RemoveAll(destDir); err != nil {
				return profileStats{}, err
			}
			byteCount += total
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	var dataHTTPBPS string
	flag.StringVar(&cfg.mode, "mode", "readentry", "mode: list, readentry, extract")
	flag.IntVar(&cfg.files, "files", 512, "number of entries")
	flag.IntVar(&cfg.fileSize, "file-size", 16<<10, "entry size in bytes")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.StringVar(&cfg.compression, "compression", "deflate", "compression: store or deflate")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.source, "source", "memory", "source: memory, file, http")
	flag.StringVar(&cfg.dataURL, "data-url", "local", "HTTP archive URL (\"local\" serves the generated archive)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for HTTP source")
	flag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for HTTP source (e.g. 10MB)")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "block cache directory for the HTTP source")
	flag.IntVar(&cfg.bufferSize, "buffer-size", 0, "reader buffer size (0 for the default)")
	flag.IntVar(&cfg.workers, "workers", 1, "extraction workers")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize readentry entry selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory for the archive and extraction output")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Uint64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	if dataHTTPBPS != "" {
		bps, err := parseBytesPerSecond(dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = bps
	}
	return cfg
}

func pickEntry(entries []unzip.Entry, idx int, rng *rand.Rand, random bool) unzip.Entry {
	if random {
		return entries[rng.IntN(len(entries))]
	}
	return entries[idx%len(entries)]
}

func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "unzip-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// buildArchive writes a synthetic archive of cfg.files entries spread over
// cfg.dirCount directories.
func buildArchive(cfg config) ([]byte, error) {
	method := zip.Deflate
	switch cfg.compression {
	case "deflate":
	case "store", "none":
		method = zip.Store
	default:
		return nil, fmt.Errorf("unknown compression: %s", cfg.compression)
	}
	dirCount := max(cfg.dirCount, 1)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	rng := rand.New(rand.NewPCG(cfg.randomSeed, 0)) //nolint:gosec // intentional use for reproducible benchmarks
	content := make([]byte, cfg.fileSize)
	for i := range cfg.files {
		fillContent(content, i, cfg.pattern, rng)
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i),
			Method:   method,
			Modified: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fillContent(content []byte, i int, pattern string, rng *rand.Rand) {
	switch pattern {
	case "random":
		for j := range content {
			content[j] = byte(rng.Uint32())
		}
	default:
		fillByte := byte('a' + (i % 26))
		for j := range content {
			content[j] = fillByte
		}
		if len(content) > 0 {
			content[0] = byte(i)
		}
	}
}
