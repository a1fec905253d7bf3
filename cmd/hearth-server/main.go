package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/marcus/hearth/internal/api"
	"github.com/marcus/hearth/internal/schedule"
	"github.com/marcus/hearth/internal/serverdb"
	"github.com/marcus/hearth/internal/version"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	// Route to member subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "member" {
		runMember(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()
	slog.SetDefault(slog.New(newHandler(cfg)))

	if err := os.MkdirAll(filepath.Dir(cfg.ServerDBPath), 0700); err != nil {
		slog.Error("create data dir", "err", err)
		os.Exit(1)
	}
	lock, err := serverdb.AcquireLock(cfg.ServerDBPath, 2*time.Second)
	if err != nil {
		if errors.Is(err, serverdb.ErrLocked) {
			slog.Error("another hearth-server is using this database", "path", cfg.ServerDBPath, "err", err)
		} else {
			slog.Error("lock server db", "err", err)
		}
		os.Exit(1)
	}
	defer lock.Release()

	store, err := serverdb.Open(cfg.ServerDBPath)
	if err != nil {
		slog.Error("open server db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}
	srv.Version = version.Resolve(Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", cfg.ListenAddr, "db", cfg.ServerDBPath, "version", srv.Version)

	feeds := schedule.New(cfg.ICSFeeds, store, nil)
	if err := feeds.Start(cfg.ICSRefresh); err != nil {
		slog.Error("calendar feeds disabled", "err", err)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	feeds.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func newHandler(cfg api.Config) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}
