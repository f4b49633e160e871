// Package main provides the ollamagw CLI application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/modelplex/ollamagw/internal/config"
	"github.com/modelplex/ollamagw/internal/server"
	"github.com/modelplex/ollamagw/internal/upstream"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Options defines command line options.
type Options struct {
	Config  string `short:"c" long:"config" default:"config.toml" description:"Path to configuration file"`
	HTTP    string `long:"http" description:"HTTP server address in [HOST]:PORT format, overrides the configured port"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable verbose logging"`
	Version bool   `long:"version" description:"Show version information"`
}

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "ollamagw"
	parser.Usage = "[OPTIONS]"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("ollamagw %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if opts.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})))
		slog.Info("verbose logging enabled")
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})))
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		slog.Error("failed to load config", "file", opts.Config, "error", err)
		os.Exit(1)
	}
	slog.Info("loaded configuration", "file", opts.Config, "base_url", cfg.OpenAIBaseURL)

	applyLogLevel(cfg.LogLevel, opts.Verbose)

	addr := opts.HTTP
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}

	client := upstream.NewHTTPClient(cfg)
	srv := server.New(cfg, addr, client)

	slog.Info("starting server", "address", addr)
	done := srv.Start()
	select {
	case err := <-done:
		if err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	default:
	}
	slog.Info("server started successfully", "address", addr)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// Two independent triggers can end the process: an OS signal, or
	// the server's own Serve loop returning on its own (e.g. a listener
	// error). errgroup.WithContext lets whichever fires first drive a
	// graceful Stop, and Wait blocks until both have settled.
	group, groupCtx := errgroup.WithContext(sigCtx)
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Stop(ctx)
		return nil
	})
	group.Go(func() error {
		return <-done
	})
	if err := group.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// applyLogLevel re-applies the handler at the level resolved from
// config, unless -v already forced debug.
func applyLogLevel(level string, verbose bool) {
	if verbose {
		return
	}

	var slogLevel slog.Level
	switch level {
	case "DEBUG":
		slogLevel = slog.LevelDebug
	case "WARNING":
		slogLevel = slog.LevelWarn
	case "ERROR", "CRITICAL":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})))
}
