// Reads, writes and invalidates pages in a page store from the command line.
//
//	pagestorectl -servers cache-1,cache-2 -port 11211 put SESSION PAGE < page.bin
//	pagestorectl get SESSION PAGE > page.bin
//	pagestorectl batch < script   # one command per line; rm-session sees pages put earlier in the script
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/pagestore"
	zaplog "github.com/unkn0wn-root/pagestore/log/zap"
	pr "github.com/unkn0wn-root/pagestore/provider"
	bcprov "github.com/unkn0wn-root/pagestore/provider/bigcache"
	"github.com/unkn0wn-root/pagestore/provider/memcached"
	redisprov "github.com/unkn0wn-root/pagestore/provider/redis"
	ristprov "github.com/unkn0wn-root/pagestore/provider/ristretto"
)

// errMiss makes `get` exit with status 1 without logging an error.
var errMiss = errors.New("page not found")

type config struct {
	backend         string
	servers         string
	port            int
	password        string
	db              int
	timeout         time.Duration
	expiration      time.Duration
	shutdownTimeout time.Duration
	logLevel        string
	logFormat       string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errMiss):
		os.Exit(1)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "pagestorectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cfg config
	fs := flag.NewFlagSet("pagestorectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.backend, "backend", "memcached", "Remote store: memcached, redis, ristretto or bigcache.")
	fs.StringVar(&cfg.servers, "servers", "127.0.0.1", "Comma-separated server hostnames.")
	fs.IntVar(&cfg.port, "port", 11211, "Server port (1024-65535).")
	fs.StringVar(&cfg.password, "redis_password", "", "Redis password.")
	fs.IntVar(&cfg.db, "redis_db", 0, "Redis database.")
	fs.DurationVar(&cfg.timeout, "timeout", 500*time.Millisecond, "Per-operation network timeout.")
	fs.DurationVar(&cfg.expiration, "expiration", 30*time.Minute, "Page expiration time.")
	fs.DurationVar(&cfg.shutdownTimeout, "shutdown_timeout", 30*time.Second, "Grace period for in-flight operations on exit.")
	fs.StringVar(&cfg.logLevel, "log_level", "warn", "Log level: debug, info, warn or error.")
	fs.StringVar(&cfg.logFormat, "log_format", "console", "Log format: console or json.")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: pagestorectl [flags] put|get|rm|rm-session|batch [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	zl, err := newZap(cfg.logLevel, cfg.logFormat, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ds, err := open(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Destroy(context.Background()); err != nil {
			zl.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	cli := &cli{ds: ds, log: zl, stdin: stdin, stdout: stdout}
	return cli.exec(ctx, fs.Args())
}

func newZap(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)), nil
}

func open(ctx context.Context, cfg config, zl *zap.Logger) (pagestore.DataStore, error) {
	opts := pagestore.Options{
		ExpirationTime:  cfg.expiration,
		ShutdownTimeout: cfg.shutdownTimeout,
		Logger:          zaplog.New(zl),
	}
	servers := splitServers(cfg.servers)

	var (
		p   pr.Provider
		err error
	)
	switch cfg.backend {
	case "memcached":
		return pagestore.Connect(ctx, memcached.Config{
			Servers: servers,
			Port:    cfg.port,
			Timeout: cfg.timeout,
		}, opts)
	case "redis":
		p, err = redisprov.Connect(ctx, redisprov.ConnectConfig{
			Servers:  servers,
			Port:     cfg.port,
			Password: cfg.password,
			DB:       cfg.db,
			Timeout:  cfg.timeout,
		})
	case "ristretto":
		p, err = ristprov.New(ristprov.Config{NumCounters: 1e5, MaxCost: 64 << 20, BufferItems: 64})
	case "bigcache":
		p, err = bcprov.New(ctx, bcprov.Config{LifeWindow: cfg.expiration})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
	if err != nil {
		return nil, err
	}
	opts.Provider = p
	return pagestore.New(opts)
}

func splitServers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
