// Package main provides the markpad editor server entrypoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/euforicio/markpad/internal/buildinfo"
	"github.com/euforicio/markpad/internal/config"
	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/editor"
	"github.com/euforicio/markpad/internal/export"
	"github.com/euforicio/markpad/internal/render"
	"github.com/euforicio/markpad/internal/server"
	"github.com/euforicio/markpad/internal/state"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("markpad", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "markpad")
	slog.SetDefault(logger)
	logger.Info("starting markpad", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	renderer := render.NewService(logger)
	diagrams := diagram.New(logger, &diagram.Options{Dark: cfg.DarkModeFirst})
	store := state.NewStore(cfg.StateDir, cfg.DarkModeFirst, logger)

	exporter, err := export.New(renderer, diagrams, logger, nil)
	if err != nil {
		cancel()
		logger.Error("export pipeline init failed", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			logger.Error("close export pipeline", slog.Any("err", err))
		}
	}()

	ctrl := editor.NewController(ctx, renderer, diagrams, store, exporter, logger)
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Error("close editor", slog.Any("err", err))
		}
	}()

	// Optional positional argument: a markdown file to load and follow.
	if args := flags.Args(); len(args) > 0 {
		path := args[0]
		data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path from the command line
		if err != nil {
			cancel()
			logger.Error("read file failed", slog.String("path", path), slog.Any("err", err))
			os.Exit(1)
		}
		if err := ctrl.LoadFile(path, "", data); err != nil {
			cancel()
			logger.Error("load file failed", slog.String("path", path), slog.Any("err", err))
			os.Exit(1)
		}
		if err := ctrl.WatchFile(path); err != nil {
			logger.Warn("watch file failed", slog.String("path", path), slog.Any("err", err))
		}
	}

	srv, err := server.New(cfg, logger, ctrl)
	if err != nil {
		cancel()
		logger.Error("server init failed", slog.Any("err", err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		logger.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
