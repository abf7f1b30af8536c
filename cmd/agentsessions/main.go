package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kmladek/agentsessions/internal/config"
	"github.com/kmladek/agentsessions/internal/provider"
	"github.com/kmladek/agentsessions/internal/server"
	"github.com/kmladek/agentsessions/internal/store"
)

var version = "dev"

const watcherDebounce = 500 * time.Millisecond

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("agentsessions %s\n", version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}
	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`agentsessions %s - local API for AI agent session logs

Scans Claude Code, Codex, and Gemini CLI session logs into an
in-memory cache and serves them over a local REST API with
filtering, pagination, and full-text search.

Usage:
  agentsessions [flags]          Start the server (default command)
  agentsessions serve [flags]    Start the server (explicit)
  agentsessions version          Show version information
  agentsessions help             Show this help

Flags:
  -host string             Host to bind to (default "127.0.0.1")
  -port int                Port to listen on (default 8636)
  -cache-dir string        Disk cache directory
  -no-disk-cache           Disable the disk cache
  -refresh-interval dur    Background refresh interval, 0 disables
  -log-file string         Log to a rotating file instead of stderr

Environment variables:
  CLAUDE_HOME                        Claude Code home directory
  CODEX_HOME                         Codex home directory
  GEMINI_HOME                        Gemini CLI home directory
  AGENT_SESSIONS_DATA_DIR            Data directory (config file)
  AGENT_SESSIONS_CACHE_DIR           Disk cache directory
  AGENT_SESSIONS_DISABLE_DISK_CACHE  Disable the disk cache
  AGENT_SESSIONS_REFRESH_INTERVAL    Refresh interval (duration or seconds)
  AGENT_SESSIONS_LOG_FILE            Rotating log file path
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	setupLogging(cfg)

	st := store.New(
		provider.All(),
		cfg.ProviderRoots(),
		cfg.RefreshInterval,
		store.NewDiskCache(cfg.CacheDir, !cfg.DisableCache),
	)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("agentsessions %s: initial scan", version)
	st.RefreshNow(ctx)
	stats := st.LastStats()
	fmt.Printf("Scanned %d source(s): %d parsed, %d from disk cache\n",
		stats.Sources, stats.Parsed, stats.FromDisk)

	stopWatcher := startWatcher(ctx, cfg, st)
	defer stopWatcher()

	go st.Run(ctx)

	srv := server.New(st)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("agentsessions %s listening at http://%s\n",
		version, cfg.Addr())
	if err := srv.Start(cfg.Addr()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("agentsessions", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: agentsessions [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

// setupLogging routes the standard logger to a rotating file when
// one is configured; stderr otherwise.
func setupLogging(cfg config.Config) {
	if cfg.LogFile == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	})
}

// startWatcher watches every provider root and triggers a refresh
// when files settle. Missing roots are skipped; they are rescanned
// by the periodic refresh if they appear later.
func startWatcher(
	ctx context.Context, cfg config.Config, st *store.Store,
) func() {
	w, err := store.NewWatcher(watcherDebounce, func() {
		st.RefreshNow(ctx)
	})
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}

	watched := 0
	for _, roots := range cfg.ProviderRoots() {
		for _, root := range roots {
			if _, err := os.Stat(root); err == nil {
				watched += w.WatchRecursive(root)
			}
		}
	}
	log.Printf("watching %d directories", watched)

	w.Start()
	return w.Stop
}
