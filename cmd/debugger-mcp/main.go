// Command debugger-mcp is the stdio entrypoint for the debugger
// orchestrator (spec.md §6 "CLI surface"): it speaks line-delimited
// JSON-RPC on stdin/stdout and keeps every diagnostic on stderr.
//
// Grounded on the .env loading and signal-driven shutdown shape of the
// teacher's cmd/main.go, stripped of the HTTP server and gin router that
// binary no longer needs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/audit"
	"github.com/apex-build/cdp-debugger/internal/authtoken"
	"github.com/apex-build/cdp-debugger/internal/config"
	"github.com/apex-build/cdp-debugger/internal/logging"
	"github.com/apex-build/cdp-debugger/internal/metrics"
	"github.com/apex-build/cdp-debugger/internal/ratelimit"
	"github.com/apex-build/cdp-debugger/internal/registry"
	"github.com/apex-build/cdp-debugger/internal/session"
	"github.com/apex-build/cdp-debugger/internal/shutdown"
	"github.com/apex-build/cdp-debugger/internal/tool"
)

func main() {
	// Both flags are observability-only: the tool façade always speaks
	// line-delimited JSON-RPC over stdio, never a network listener.
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	flag.Bool("stdio", true, "communicate over stdin/stdout (the only supported mode)")
	flag.Parse()
	if *logLevel != "" {
		os.Setenv("LOG_LEVEL", *logLevel)
	}

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			// Absence of a .env file is normal outside local development.
		}
	}

	logging.Init()
	log := logging.L()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	sessionCfg := session.Config{
		InspectorPortBase:  9229,
		InspectorPortMax:   9329,
		CommandTimeout:     cfg.CommandTimeout,
		SessionStartTimeout: cfg.SessionStartTimeout,
		AttachDeadline:     cfg.AttachDeadline,
		ShutdownGrace:      cfg.ShutdownGrace,
		SourceMapSourceDir: cfg.SourceMapSourceDir,
		SourceMapOutputDir: cfg.SourceMapOutputDir,
	}
	m := metrics.NewSink()
	reg := registry.New(sessionCfg, cfg.MaxConcurrentSessions, cfg.SessionIdleTimeout, log, m)
	hangPorts := session.NewPortAllocator(9330, 9430)

	limiter := ratelimit.New(cfg.RateLimitPerMinute)
	auth := authtoken.New(cfg.AuthToken)
	aud := audit.New(log)

	srv := tool.New(os.Stdin, os.Stdout, log, limiter, auth, aud, m)
	tool.RegisterDebuggerTools(srv, reg, hangPorts, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sd := shutdown.New()
	sd.Register(func(ctx context.Context) { reg.Shutdown(ctx) })

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down", zap.Duration("grace", cfg.ShutdownGrace))
	case err := <-runErr:
		if err != nil {
			log.Error("tool server exited", zap.Error(err))
		}
	}

	sd.Run(cfg.ShutdownGrace)
	log.Info("shutdown complete")
	time.Sleep(10 * time.Millisecond) // let the final log line flush to stderr
}
