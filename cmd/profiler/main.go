package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felixge/fgprof"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/archive"
	"github.com/sealpack/sealpack/internal/testutil"
)

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	chunkSize       int
	workers         int
	cacheEntries    int
	pattern         string
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
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkCount int
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

	paths, err := makeFiles(dir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

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

	stats, err := runProfile(cfg, paths, dir)
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

	fmt.Printf("mode=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.mode,
		stats.ops,
		humanize.IBytes(uint64(stats.bytes)),
		stats.elapsed,
		humanize.IBytes(uint64(float64(stats.bytes)/stats.elapsed.Seconds())),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func (c config) codecOpts() []sealpack.Option {
	opts := []sealpack.Option{sealpack.WithChunkSize(c.chunkSize)}
	if c.workers > 0 {
		opts = append(opts, sealpack.WithWorkers(c.workers))
	}
	return opts
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func (c config) archiveOpts() []archive.Option {
	return []archive.Option{
		archive.WithCodecOptions(c.codecOpts()...),
		archive.WithConcurrency(c.workers),
		archive.WithCache(c.cacheEntries),
	}
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, paths []string, rootDir string) (profileStats, error) {
	ctx := context.Background()
	ops := 0
	var byteCount int64
	var start time.Time

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "encode", "decode", "verify":
		input, err := os.ReadFile(filepath.Join(rootDir, "data", filepath.FromSlash(paths[0])))
		if err != nil {
			return profileStats{}, err
		}
		pool := sealpack.NewPool(cfg.workers)
		defer pool.Close()
		opts := append(cfg.codecOpts(), sealpack.WithPool(pool))
		stream, err := sealpack.Encode(input, opts...)
		if err != nil {
			return profileStats{}, err
		}

		start = time.Now()
		for shouldContinue() {
			switch cfg.mode {
			case "encode":
				sinkBytes, err = sealpack.Encode(input, opts...)
			case "decode":
				sinkBytes, err = sealpack.Decode(stream, opts...)
			default:
				err = sealpack.Verify(stream, opts...)
			}
			if err != nil {
				return profileStats{}, err
			}
			byteCount += int64(len(input))
			ops++
		}

	case "pack":
		var buf bytes.Buffer
		start = time.Now()
		for shouldContinue() {
			buf.Reset()
			entries, err := archive.PackPaths(ctx, &buf, filepath.Join(rootDir, "data"), nil, cfg.archiveOpts()...)
			if err != nil {
				return profileStats{}, err
			}
			sinkCount = len(entries)
			byteCount += int64(cfg.files) * int64(cfg.fileSize)
			ops++
		}

	case "readfile", "fsck", "unpack":
		r, cleanupArchive, err := buildArchive(cfg, rootDir)
		if err != nil {
			return profileStats{}, err
		}
		defer cleanupArchive()

		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		start = time.Now()
		for shouldContinue() {
			switch cfg.mode {
			case "readfile":
				content, err := r.ReadFile(pickPath(paths, ops, rng, cfg.readRandom))
				if err != nil {
					return profileStats{}, err
				}
				sinkBytes = content
				byteCount += int64(len(content))
			case "fsck":
				report, err := r.Fsck(ctx)
				if err != nil {
					return profileStats{}, err
				}
				if !report.OK() {
					return profileStats{}, fmt.Errorf("fsck: %d entries failed", len(report.Failures()))
				}
				byteCount += int64(cfg.files) * int64(cfg.fileSize)
			default:
				dest := filepath.Join(rootDir, "unpack", fmt.Sprintf("iter-%d", ops))
				if err := r.Unpack(ctx, dest); err != nil {
					return profileStats{}, err
				}
				if err := os.RemoveAll(dest); err != nil {
					return profileStats{}, err
				}
				byteCount += int64(cfg.files) * int64(cfg.fileSize)
			}
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
	var dataHTTPBPS, fileSize, chunkSize string
	flag.StringVar(&cfg.mode, "mode", "decode", "mode: encode, decode, verify, pack, readfile, fsck, unpack")
	flag.IntVar(&cfg.files, "files", 512, "number of files")
	flag.StringVar(&fileSize, "file-size", "16KiB", "file size")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.StringVar(&chunkSize, "chunk-size", "64KiB", "encoder chunk size")
	flag.IntVar(&cfg.workers, "workers", 0, "codec and archive workers (0 = GOMAXPROCS)")
	flag.IntVar(&cfg.cacheEntries, "cache", 0, "decoded entries kept in the archive LRU cache")
	flag.StringVar(&cfg.pattern, "pattern", "text", "pattern: text, skewed, runs or random")
	flag.StringVar(&cfg.dataURL, "data-url", "", "HTTP archive URL (use \"local\" to serve the generated archive)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for HTTP data source")
	flag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for HTTP data source (e.g. 10MB/s)")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize readfile path selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()

	cfg.fileSize = mustParseSize("file-size", fileSize)
	cfg.chunkSize = mustParseSize("chunk-size", chunkSize)
	if cfg.files <= 0 {
		log.Fatal("files must be positive")
	}
	if dataHTTPBPS != "" {
		bps, err := parseBytesPerSecond(dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = bps
	}
	return cfg
}

func mustParseSize(name, value string) int {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	if n > 1<<30 {
		log.Fatalf("%s: %s exceeds 1GiB", name, value)
	}
	return int(n)
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.Intn(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "sealpack-profiler-*")
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

// makeFiles writes the dataset under dir/data.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeFiles(dir string, cfg config) ([]string, error) {
	dirCount := max(cfg.dirCount, 1)
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		relPath := fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i)
		fullPath := filepath.Join(dir, "data", filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, err
		}

		var content []byte
		switch cfg.pattern {
		case "random":
			content = testutil.Random(cfg.fileSize, uint64(cfg.randomSeed)+uint64(i)) //nolint:gosec // seed is a flag value
		case "runs":
			content = testutil.Runs(cfg.fileSize, uint64(cfg.randomSeed)+uint64(i)) //nolint:gosec // seed is a flag value
		case "skewed":
			content = testutil.Skewed(cfg.fileSize)
		case "text":
			content = testutil.Text(cfg.fileSize)
		default:
			return nil, fmt.Errorf("unknown pattern: %s", cfg.pattern)
		}

		if err := os.WriteFile(fullPath, content, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return nil, err
		}
		paths = append(paths, relPath)
	}
	return paths, nil
}

// buildArchive packs the dataset and opens it from memory or over HTTP.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func buildArchive(cfg config, rootDir string) (*archive.Reader, func(), error) {
	var buf bytes.Buffer
	if _, err := archive.PackPaths(context.Background(), &buf, filepath.Join(rootDir, "data"), nil, cfg.archiveOpts()...); err != nil {
		return nil, nil, err
	}

	var src archive.ByteSource = testutil.NewMockByteSource(buf.Bytes())
	cleanup := func() {}
	if cfg.dataURL != "" {
		var err error
		src, cleanup, err = newHTTPSource(cfg, buf.Bytes())
		if err != nil {
			return nil, nil, err
		}
	}

	r, err := archive.Open(src, cfg.archiveOpts()...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if r.Len() == 0 {
		cleanup()
		return nil, nil, errors.New("archive has no entries")
	}
	return r, cleanup, nil
}
