package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/worldsync/internal/config"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/transport"
	"github.com/zeusync/worldsync/internal/injector"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to worldsync.yaml (optional)")
		listen     = flag.String("listen", "", "listen address (overrides config)")
		backend    = flag.String("transport", "", "tcp or quic (overrides config)")
		maxClients = flag.Int("max_clients", 0, "player limit (overrides config)")
		level      = flag.String("level", "", "initial level (overrides config)")
		status     = flag.String("status", "", "status http address, empty to disable (overrides config)")
		capture    = flag.String("capture", "", "packet capture file (overrides config)")
		logLevel   = flag.String("log_level", "", "debug, info, warn or error (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	if *backend != "" {
		cfg.Server.Transport = transport.Backend(*backend)
	}
	if *maxClients > 0 {
		cfg.Server.MaxClients = *maxClients
	}
	if *level != "" {
		cfg.Server.Level = *level
	}
	if *status != "" {
		cfg.Server.StatusAddr = *status
	}
	if *capture != "" {
		cfg.Server.CapturePath = *capture
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if err := cfg.Server.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	srv, cleanup, err := injector.InitializeServer(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Authority.Run(ctx); err != nil {
		srv.Logger.Error("Server exited", log.Error(err))
		cleanup()
		os.Exit(1)
	}
}
