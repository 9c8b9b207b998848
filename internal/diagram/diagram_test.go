package diagram_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/render"
)

func newAdapter(dark bool) *diagram.Adapter {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return diagram.New(logger, &diagram.Options{Dark: dark})
}

func renderPreview(t *testing.T, markdown string) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return render.NewService(logger).Render(markdown).HTML
}

func TestRenderAllProducesSVG(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := renderPreview(t, "```mermaid\na -> b\n```\n")
	out := adapter.RenderAll(context.Background(), html)

	if !strings.Contains(out, `data-diagram-state="rendered"`) {
		t.Fatalf("expected rendered placeholder, got %s", out)
	}
	if !strings.Contains(out, "<svg") {
		t.Fatalf("expected inline svg, got %s", out)
	}
	if strings.Contains(out, `data-diagram-state="pending"`) {
		t.Fatalf("expected no pending placeholders to remain")
	}
}

func TestRenderAllKeepsSchemaMarker(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := renderPreview(t, "```schema\nusers -> orders\n```\n")
	out := adapter.RenderAll(context.Background(), html)

	if !strings.Contains(out, `class="diagram schema"`) {
		t.Fatalf("expected schema marker class to survive rendering, got %s", out)
	}
}

func TestRenderAllIdempotent(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := renderPreview(t, "```mermaid\na -> b\n```\n")
	first := adapter.RenderAll(context.Background(), html)
	second := adapter.RenderAll(context.Background(), first)

	if first != second {
		t.Fatalf("expected second pass over rendered output to be a no-op")
	}
}

func TestRenderAllNoPlaceholders(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := "<h1>No diagrams here</h1>\n"
	if out := adapter.RenderAll(context.Background(), html); out != html {
		t.Fatalf("expected untouched HTML, got %s", out)
	}
}

func TestRenderAllSingleFailureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := renderPreview(t, "```mermaid\n-> -> ->\n```\n\n```mermaid\na -> b\n```\n")
	out := adapter.RenderAll(context.Background(), html)

	if !strings.Contains(out, `data-diagram-state="failed"`) {
		t.Fatalf("expected failed marker for broken diagram, got %s", out)
	}
	if !strings.Contains(out, `class="diagram-error"`) {
		t.Fatalf("expected inline error fragment, got %s", out)
	}
	if !strings.Contains(out, `data-diagram-state="rendered"`) {
		t.Fatalf("expected sibling diagram to still render, got %s", out)
	}
}

func TestRenderAllSourceContainingClosingTag(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	// The literal source sits unescaped inside the placeholder, so a label
	// containing "</div>" must not truncate the replacement and leave stray
	// source text behind.
	html := renderPreview(t, "```mermaid\na -> b: \"</div>\"\n```\n\nafter\n")
	out := adapter.RenderAll(context.Background(), html)

	if !strings.Contains(out, `data-diagram-state="rendered"`) {
		t.Fatalf("expected rendered placeholder, got %s", out)
	}
	if got := strings.Count(out, "</div>"); got != 1 {
		t.Fatalf("expected exactly one closing div, got %d in %s", got, out)
	}
	if !strings.Contains(out, "<p>after</p>") {
		t.Fatalf("expected trailing paragraph to survive, got %s", out)
	}
}

func TestRenderAllEmptySourceFails(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	html := renderPreview(t, "```mermaid\n```\n")
	out := adapter.RenderAll(context.Background(), html)

	if !strings.Contains(out, `data-diagram-state="failed"`) {
		t.Fatalf("expected empty diagram to fail, got %s", out)
	}
}

func TestSetThemeAffectsSubsequentRenders(t *testing.T) {
	t.Parallel()
	adapter := newAdapter(false)

	if adapter.Theme() {
		t.Fatalf("expected light theme initially")
	}
	adapter.SetTheme(true)
	if !adapter.Theme() {
		t.Fatalf("expected dark theme after SetTheme(true)")
	}
	adapter.SetTheme(false)
	if adapter.Theme() {
		t.Fatalf("expected theme toggle to be reversible")
	}

	html := renderPreview(t, "```mermaid\na -> b\n```\n")
	adapter.SetTheme(true)
	dark := adapter.RenderAll(context.Background(), html)
	adapter.SetTheme(false)
	light := adapter.RenderAll(context.Background(), html)

	if dark == light {
		t.Fatalf("expected theme change to produce different svg output")
	}
}
