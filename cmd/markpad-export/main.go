// Package main provides the one-shot markdown to PDF export CLI.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/euforicio/markpad/internal/buildinfo"
	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/export"
	"github.com/euforicio/markpad/internal/render"
	"github.com/euforicio/markpad/internal/state"
)

func main() {
	flags := pflag.NewFlagSet("markpad-export", pflag.ExitOnError)
	out := flags.StringP("out", "o", "", "output PDF path (default: input name with .pdf)")
	format := flags.String("format", string(state.PageA4), "page format (a4, letter, legal, tabloid, a3, a5)")
	orientation := flags.String("orientation", string(state.OrientationPortrait), "page orientation (portrait, landscape)")
	margin := flags.Int("margin", 20, "page margin in millimeters")
	dark := flags.Bool("dark", false, "render with the dark theme")
	verbose := flags.BoolP("verbose", "v", false, "enable verbose logging")
	versionFlag := flags.Bool("version", false, "Print version information and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		println(buildinfo.Summary())
		os.Exit(0)
	}
	if flags.NArg() != 1 {
		slog.Error("usage: markpad-export [flags] <file.md>")
		os.Exit(2)
	}
	input := flags.Arg(0)

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger.Info("starting markpad-export", slog.String("version", buildinfo.Summary()))

	markdown, err := os.ReadFile(input) // #nosec G304 -- user-supplied path from the command line
	if err != nil {
		logger.Error("read input failed", slog.String("path", input), slog.Any("err", err))
		os.Exit(1)
	}

	target := *out
	if target == "" {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		target = base + ".pdf"
	}

	st := state.DocumentState{
		Markdown: string(markdown),
		Settings: state.ExportSettings{
			FileName:    filepath.Base(target),
			PageFormat:  state.PageFormat(*format),
			Orientation: state.Orientation(*orientation),
			MarginMM:    *margin,
		},
		DarkMode: *dark,
	}
	if err := st.Settings.Validate(); err != nil {
		logger.Error("invalid export settings", slog.Any("err", err))
		os.Exit(1)
	}

	renderer := render.NewService(logger)
	diagrams := diagram.New(logger, &diagram.Options{Dark: *dark})
	pipeline, err := export.New(renderer, diagrams, logger, nil)
	if err != nil {
		logger.Error("init export pipeline failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("close export pipeline", slog.Any("err", err))
		}
	}()

	res, err := pipeline.Export(context.Background(), st)
	if err != nil {
		logger.Error("export failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := os.WriteFile(target, res.PDF, 0o644); err != nil { // #nosec G306 -- regular document output
		logger.Error("write output failed", slog.String("path", target), slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("export succeeded", slog.String("output", target), slog.Int("bytes", len(res.PDF)))
}
