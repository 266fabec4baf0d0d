// Command sealpack encodes, decodes and archives data in the sealpack
// format.
//
// Usage:
//
//	sealpack [--config FILE] [--log-level LEVEL] [--workers N] [--chunk-size SIZE] <command> [args]
//
// Commands:
//
//	encode  -i IN -o OUT      encode one stream ("-" is stdin/stdout)
//	decode  -i IN -o OUT      verify and decode one stream
//	pack    -o ARCHIVE [--root DIR] [PATH...]
//	unpack  ARCHIVE [-d DIR] [--overwrite]
//	list    ARCHIVE
//	cat     ARCHIVE PATH
//	fsck    FILE              check an archive or a single stream
//	bench   [-f FILE] [--size SIZE]
//	push    ARCHIVE REF [-t TAG...]
//	pull    REF -o ARCHIVE
//
// ARCHIVE may be an http:// or https:// URL, or oci://REF for an archive
// pushed to an OCI registry, for list, cat, unpack and fsck; entries are
// fetched with range requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/archive"
	"github.com/sealpack/sealpack/cache"
	"github.com/sealpack/sealpack/internal/native"
	"github.com/sealpack/sealpack/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", exit.err)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

// app holds the state shared by commands.
type app struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	workers   int
	codecOpts []sealpack.Option
	license   *native.Boundary
	regCfg    RegistryConfig
	blocks    *cache.BlockCache
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"encode": runEncode,
	"decode": runDecode,
	"pack":   runPack,
	"unpack": runUnpack,
	"list":   runList,
	"cat":    runCat,
	"fsck":   runFsck,
	"bench":  runBench,
	"push":   runPush,
	"pull":   runPull,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		configPath string
		logLevel   string
		workers    int
		chunkSize  string
		plainHTTP  bool
		cacheDir   string
	)
	flags := pflag.NewFlagSet("sealpack", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)
	flags.StringVar(&configPath, "config", os.Getenv(ConfigEnv), "YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.IntVar(&workers, "workers", 0, "worker count (0 = GOMAXPROCS)")
	flags.StringVar(&chunkSize, "chunk-size", "", "encoder chunk size, e.g. 64KiB")
	flags.BoolVar(&plainHTTP, "plain-http", false, "use plain HTTP for OCI registries")
	flags.StringVar(&cacheDir, "cache-dir", "", "directory caching blocks of remote archives")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, err: err}
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if flags.Changed("plain-http") {
		cfg.Registry.PlainHTTP = plainHTTP
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: 2, err: err}
	}

	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stderr, flags)
		return usageError("missing command")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return usageError("unknown command %q", rest[0])
	}
	return cmd(ctx, a, rest[1:])
}

func newApp(cfg *Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, err
	}
	chunk, err := cfg.chunkBytes()
	if err != nil {
		return nil, err
	}

	a := &app{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		logger:   slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		workers:  cfg.Workers,
		regCfg:   cfg.Registry,
	}
	if cfg.Workers > 0 {
		a.codecOpts = append(a.codecOpts, sealpack.WithWorkers(cfg.Workers))
	}
	if chunk > 0 {
		a.codecOpts = append(a.codecOpts, sealpack.WithChunkSize(chunk))
	}

	if cfg.CacheDir != "" {
		maxBytes, err := cfg.cacheBytes()
		if err != nil {
			return nil, err
		}
		a.blocks, err = cache.New(cfg.CacheDir, cache.WithMaxBytes(maxBytes))
		if err != nil {
			return nil, err
		}
	}

	var gate native.Gate
	if cfg.RequireLicense {
		gate = native.RequireLicense
	}
	a.license = native.New(nil, native.WithGate(gate), native.WithLogger(a.logger))
	a.license.SetLicenseSecret(cfg.LicenseSecret)
	a.license.SetLicenseKey(cfg.LicenseKey)
	return a, nil
}

// archiveOpts returns the options shared by archive commands.
func (a *app) archiveOpts(extra ...archive.Option) []archive.Option {
	opts := []archive.Option{
		archive.WithLogger(a.logger),
		archive.WithCodecOptions(a.codecOpts...),
		archive.WithProgress(func(ev archive.ProgressEvent) {
			a.logger.Debug("progress", "stage", ev.Stage.String(), "path", ev.Path,
				"files_done", ev.FilesDone, "files_total", ev.FilesTotal)
		}),
	}
	if a.workers > 0 {
		opts = append(opts, archive.WithConcurrency(a.workers))
	}
	return append(opts, extra...)
}

// registryClient returns a registry client for ref.
func (a *app) registryClient(ref string) *registry.Client {
	opts := []registry.Option{
		registry.WithLogger(a.logger),
		registry.WithPlainHTTP(a.regCfg.PlainHTTP),
	}
	switch {
	case a.regCfg.Username != "":
		host, _, _ := strings.Cut(ref, "/")
		opts = append(opts, registry.WithStaticCredentials(host, a.regCfg.Username, a.regCfg.Password))
	case a.regCfg.DockerConfig:
		opts = append(opts, registry.WithDockerConfig())
	}
	return registry.New(opts...)
}

// allowed applies the license gate to stream transforms.
func (a *app) allowed() error {
	if err := a.license.Allowed(); err != nil {
		return &exitError{code: int(native.LicenseDenied), err: err}
	}
	return nil
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprint(w, `sealpack encodes, decodes and archives data.

Usage:
  sealpack [flags] <command> [args]

Commands:
  encode  -i IN -o OUT          encode one stream ("-" is stdin/stdout)
  decode  -i IN -o OUT          verify and decode one stream
  pack    -o ARCHIVE [--root DIR] [PATH...]
  unpack  ARCHIVE [-d DIR] [--overwrite]
  list    ARCHIVE
  cat     ARCHIVE PATH
  fsck    FILE                  check an archive or a single stream
  bench   [-f FILE] [--size SIZE]
  push    ARCHIVE REF [-t TAG...]   push an archive to an OCI registry
  pull    REF -o ARCHIVE            download and verify a pushed archive

ARCHIVE may also be an http(s):// URL or oci://REF.

Flags:
`)
	flags.SetOutput(w)
	flags.PrintDefaults()
}
