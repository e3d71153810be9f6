package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/worldsync/internal/client"
	"github.com/zeusync/worldsync/internal/config"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/transport"
	"github.com/zeusync/worldsync/internal/injector"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to worldsync.yaml (optional)")
		serverAddr = flag.String("server", "", "server address (overrides config)")
		backend    = flag.String("transport", "", "tcp or quic (overrides config)")
		name       = flag.String("name", "", "player name (overrides config)")
		items      = flag.Int("items", 0, "number of items the bot spawns and carries")
		ping       = flag.Bool("ping", false, "print the server status and exit")
		logLevel   = flag.String("log_level", "", "debug, info, warn or error (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if *serverAddr != "" {
		cfg.Client.ServerAddr = *serverAddr
	}
	if *backend != "" {
		cfg.Client.Transport = transport.Backend(*backend)
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	if *logLevel != "" {
		cfg.Client.LogLevel = *logLevel
	}
	if err := cfg.Client.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	c, cleanup, err := injector.InitializeClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *ping {
		pingCtx, cancel := context.WithTimeout(ctx, c.Config.HandshakeTimeout)
		defer cancel()
		reply, err := client.Ping(pingCtx, c.Config.Transport, c.Config.ServerAddr, c.Logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ping:", err)
			os.Exit(1)
		}
		fmt.Printf("%s %d/%d players, version %s\n", reply.Name, reply.Players, reply.MaxPlayers, reply.Version)
		return
	}

	if err := run(ctx, c, *items); err != nil {
		c.Logger.Error("Client exited", log.Error(err))
		cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *injector.Client, items int) error {
	session, err := client.Dial(ctx, c.Config, c.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	host := newBotHost(c.Config.Name, items, c.Logger)
	loop := client.NewLoop(c.Config, session, host, c.Logger)
	host.post = loop.Post

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
