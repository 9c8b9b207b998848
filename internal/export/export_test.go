package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/render"
	"github.com/euforicio/markpad/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := testLogger()
	p, err := New(render.NewService(logger), diagram.New(logger, nil), logger, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestExportRejectsEmptyContent(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	for _, markdown := range []string{"", "   ", "\n\n\t"} {
		st := state.DocumentState{Markdown: markdown, Settings: state.DefaultSettings()}
		if _, err := p.Export(context.Background(), st); !errors.Is(err, ErrNothingToExport) {
			t.Fatalf("markdown %q: expected ErrNothingToExport, got %v", markdown, err)
		}
	}
}

func TestExportRejectsInvalidSettings(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	st := state.DocumentState{
		Markdown: "# Doc",
		Settings: state.ExportSettings{PageFormat: "b5", Orientation: state.OrientationPortrait},
	}
	if _, err := p.Export(context.Background(), st); !errors.Is(err, state.ErrInvalidPageFormat) {
		t.Fatalf("expected invalid page format error, got %v", err)
	}
}

func TestPrintOptionsPaperAndMargins(t *testing.T) {
	t.Parallel()

	opts := printOptions(state.ExportSettings{
		PageFormat:  state.PageA4,
		Orientation: state.OrientationPortrait,
		MarginMM:    20,
	})
	if !opts.PrintBackground {
		t.Fatalf("expected PrintBackground")
	}
	approx := func(got, want float64) bool { return math.Abs(got-want) < 0.001 }
	if !approx(*opts.PaperWidth, 210.0/25.4) || !approx(*opts.PaperHeight, 297.0/25.4) {
		t.Fatalf("unexpected a4 paper size: %v x %v", *opts.PaperWidth, *opts.PaperHeight)
	}
	if !approx(*opts.MarginTop, 20.0/25.4) || !approx(*opts.MarginLeft, *opts.MarginRight) {
		t.Fatalf("unexpected margins: top=%v left=%v right=%v", *opts.MarginTop, *opts.MarginLeft, *opts.MarginRight)
	}
}

func TestPrintOptionsLandscapeSwapsDimensions(t *testing.T) {
	t.Parallel()

	portrait := printOptions(state.ExportSettings{PageFormat: state.PageLetter, Orientation: state.OrientationPortrait})
	landscape := printOptions(state.ExportSettings{PageFormat: state.PageLetter, Orientation: state.OrientationLandscape})
	if *portrait.PaperWidth != *landscape.PaperHeight || *portrait.PaperHeight != *landscape.PaperWidth {
		t.Fatalf("landscape should swap paper dimensions")
	}
}

func TestFileNameNormalization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"report", "report.pdf"},
		{"Report.PDF", "Report.PDF"},
		{"  notes  ", "notes.pdf"},
		{"", "document.pdf"},
	}
	for _, tc := range cases {
		got := FileName(state.ExportSettings{FileName: tc.in})
		if got != tc.want {
			t.Fatalf("FileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocumentBuilderProducesStandalonePage(t *testing.T) {
	t.Parallel()

	builder, err := newDocumentBuilder()
	if err != nil {
		t.Fatalf("newDocumentBuilder: %v", err)
	}

	page, err := builder.build("Trip Notes", "<h1>Trip Notes</h1><p>hello</p>", false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Trip Notes</title>",
		"<h1>Trip Notes</h1>",
		"print-color-adjust",
	} {
		if !strings.Contains(page, want) {
			t.Fatalf("page missing %q", want)
		}
	}
	if strings.Contains(page, `class="dark"`) {
		t.Fatalf("light page should not carry dark class")
	}

	dark, err := builder.build("", "<p>x</p>", true)
	if err != nil {
		t.Fatalf("build dark: %v", err)
	}
	if !strings.Contains(dark, `class="dark"`) {
		t.Fatalf("dark page missing dark class")
	}
	if !strings.Contains(dark, "<title>Document</title>") {
		t.Fatalf("empty title should fall back, got page head %q", dark[:200])
	}
}

func TestRasterizeDiagramsEmbedsPNG(t *testing.T) {
	t.Parallel()

	logger := testLogger()
	renderer := render.NewService(logger)
	diagrams := diagram.New(logger, nil)

	doc := renderer.Render("```mermaid\na -> b\n```\n")
	body := diagrams.RenderAll(context.Background(), doc.HTML)
	if !strings.Contains(body, `data-diagram-state="rendered"`) {
		t.Fatalf("setup: diagram did not render: %s", body)
	}

	out := rasterizeDiagrams(body, false, logger)
	if !strings.Contains(out, "data:image/png;base64,") {
		t.Fatalf("expected embedded png data uri")
	}
	if strings.Contains(out, "<svg") {
		t.Fatalf("svg should be replaced by img")
	}
	if !strings.Contains(out, `data-diagram-state="rendered"`) {
		t.Fatalf("wrapper div must be preserved")
	}
}

func TestRasterizeDiagramsLeavesFailuresAlone(t *testing.T) {
	t.Parallel()

	in := `<div class="diagram" data-diagram-kind="mermaid" data-diagram-state="failed" data-source-b64=""><div class="diagram-error">bad</div></div>`
	if out := rasterizeDiagrams(in, true, testLogger()); out != in {
		t.Fatalf("failed placeholders must pass through untouched")
	}
}
