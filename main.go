package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"parley/server/internal/config"
	"parley/server/internal/core"
	"parley/server/internal/httpapi"
	"parley/server/internal/registry"
	"parley/server/internal/session"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Admin subcommands run against the configured registry and exit.
	if RunCLI(flag.Args(), cfg.UserDatabase) {
		return
	}

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := cfg.SlogLevel()
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting server", "version", Version, "addr", cfg.Addr(), "db", cfg.UserDatabase)

	users, err := registry.Open(cfg.UserDatabase)
	if err != nil {
		slog.Error("open user registry", "err", err)
		os.Exit(1)
	}
	slog.Debug("user registry loaded", "path", cfg.UserDatabase, "users", users.Count())

	state := core.NewState(cfg.MaxChatMessages, cfg.TimeOfBan)
	slog.Debug("chat state initialized",
		"max_messages", cfg.MaxChatMessages,
		"message_ttl", cfg.MessageTTL,
		"ban_duration", cfg.TimeOfBan)

	chat := session.NewServer(state, users)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", cfg.Addr())
		return chat.Run(gCtx, cfg.Addr())
	})

	if cfg.APIAddr != "" {
		api := httpapi.New(state, users)
		g.Go(func() error {
			slog.Info("ops api listening", "addr", cfg.APIAddr)
			return api.Run(gCtx, cfg.APIAddr)
		})
	}

	g.Go(func() error {
		core.RunHistorySweep(gCtx, state, cfg.HistorySweepInterval, cfg.MessageTTL)
		return nil
	})
	g.Go(func() error {
		core.RunBanSweep(gCtx, state, cfg.BanSweepInterval)
		return nil
	})

	if cfg.BotEnabled {
		g.Go(func() error {
			RunChatBot(gCtx, cfg.Addr(), cfg.BotName, cfg.BotInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
