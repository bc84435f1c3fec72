// Package main is the entry point for the globby room server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/ASHISH26940/globby/internal/config"
	"github.com/ASHISH26940/globby/internal/logging"
	"github.com/ASHISH26940/globby/internal/metrics"
	"github.com/ASHISH26940/globby/internal/persistence"
	"github.com/ASHISH26940/globby/internal/server"
	"github.com/ASHISH26940/globby/internal/store"
	"github.com/ASHISH26940/globby/internal/words"
)

const usage = "Usage: globby [flags] LISTEN_ADDRESS STATIC_DIRECTORY DATA_DIRECTORY"

// shutdownGrace bounds how long in-flight requests get once a signal arrives.
const shutdownGrace = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil // --help
	}

	logger, logCloser, err := logging.New("globby", logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", cfg.Listen, err)
	}
	return serve(ctx, cfg, listener, logger)
}

// loadConfig layers defaults, the --config file, flags and positional
// arguments, in that order. The three positional arguments may be omitted
// when the config file sets listen, static_dir and data_dir. It returns a
// nil Config when --help was requested.
func loadConfig(args []string) (*config.Config, error) {
	// --- Configuration and Flags ---
	flags := pflag.NewFlagSet("globby", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flags.PrintDefaults()
	}
	configFile := flags.String("config", "", "path to a TOML config file")
	logLevel := flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	logFormat := flags.String("log-format", "", "log output format (text or json)")
	dumpFormat := flags.String("dump-format", "", "dump file format ("+fmt.Sprint(persistence.Formats())+")")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil
		}
		return nil, err
	}

	cfg := config.New()
	if *configFile != "" {
		if err := cfg.Load(*configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dumpFormat != "" {
		cfg.DumpFormat = *dumpFormat
	}
	switch flags.NArg() {
	case 3:
		cfg.Listen, cfg.StaticDir, cfg.DataDir = flags.Arg(0), flags.Arg(1), flags.Arg(2)
	case 0:
		if *configFile == "" {
			flags.Usage()
			return nil, errors.New("expected 3 positional arguments, got 0")
		}
	default:
		flags.Usage()
		return nil, fmt.Errorf("expected 3 positional arguments, got %d", flags.NArg())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs the server on listener until ctx ends, then shuts it down and
// dumps the store to the data directory.
func serve(ctx context.Context, cfg *config.Config, listener net.Listener, logger hclog.Logger) error {
	defer listener.Close()

	codec, err := persistence.CodecFor(cfg.DumpFormat)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("error creating data path %s: %w", cfg.DataDir, err)
	}

	sink, err := metrics.Setup(cfg.MetricsInterval, 6*cfg.MetricsInterval)
	if err != nil {
		return fmt.Errorf("error setting up metrics: %w", err)
	}

	// --- Restore the store from the last dump ---
	dumps := persistence.NewManager(cfg.DataDir, codec, logger.Named("persistence"))
	snap, err := dumps.Load()
	if err != nil {
		return fmt.Errorf("error loading state: %w", err)
	}
	st := store.NewStore(words.Default(), snap)

	// --- Start the HTTP Server ---
	api := server.New(st, server.Options{
		ListTimeout: cfg.ListTimeout,
		BodyLimit:   cfg.BodyLimit,
		StaticDir:   cfg.StaticDir,
		CreateRate:  cfg.CreateRate,
		CreateBurst: cfg.CreateBurst,
		Metrics:     sink,
	}, logger.Named("http"))
	defer api.Close()

	// Cancelling baseCtx releases every parked long poll and watch at shutdown.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	httpServer := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.Named("http").StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	logger.Info("listening", "addr", listener.Addr().String(), "static", cfg.StaticDir, "data", dumps.Path(), "rooms", st.Len())

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	cancelRequests()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete, closing", "error", err)
		httpServer.Close()
	}

	// Requests can no longer reach the store, so the snapshot is final.
	if err := dumps.Dump(st.Snapshot()); err != nil {
		logger.Error("error dumping state", "error", err)
		return fmt.Errorf("error dumping state: %w", err)
	}
	logger.Info("state dumped", "path", dumps.Path())
	return nil
}
