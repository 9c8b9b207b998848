// Package render converts markdown to HTML for the live preview and export.
package render

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	"github.com/euforicio/markpad/internal/render/transform"
)

// Document represents rendered markdown.
type Document struct {
	HTML  string
	Title string
}

// Service renders markdown into preview HTML. Rendering options are fixed at
// construction and never vary per call within a session.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewService constructs the markdown renderer. The renderer includes:
//   - GitHub-flavored markdown extensions
//   - typographic punctuation substitution
//   - single newlines rendered as hard line breaks
//   - syntax highlighting with chroma CSS classes (styling decides the theme)
//   - diagram placeholder emission for ```mermaid and ```schema fences
//   - YAML frontmatter parsing (the title feeds the default export filename)
//   - anchor links after headings
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	highlight := highlighting.NewHighlighting(
		highlighting.WithFormatOptions(
			chromahtml.WithLineNumbers(false),
			chromahtml.WithClasses(true),
		),
		highlighting.WithWrapperRenderer(transform.CodeWrapper()),
	)

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(transform.NewDiagramTransformer(), 100),
			),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithHardWraps(),
			// Raw HTML passes through; content is the user's own, single session.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
			renderer.WithNodeRenderers(
				util.Prioritized(transform.NewDiagramBlockRenderer(), 100),
			),
		),
	)

	return &Service{
		md:     md,
		logger: logger.With("component", "render"),
	}
}

// Render converts markdown to HTML. It never fails outward: a parser error
// degrades to an inline error fragment so the preview is never left blank,
// and the returned HTML is always non-empty.
func (s *Service) Render(markdown string) Document {
	parserCtx := parser.NewContext()
	buf := bytes.NewBuffer(nil)

	if err := s.md.Convert([]byte(markdown), buf, parser.WithContext(parserCtx)); err != nil {
		s.logger.Warn("markdown render failed", slog.Any("err", err))
		return Document{HTML: errorFragment(err)}
	}

	out := buf.String()
	if strings.TrimSpace(out) == "" {
		out = "<p></p>\n"
	}

	return Document{
		HTML:  out,
		Title: metaTitle(parserCtx),
	}
}

func errorFragment(err error) string {
	return fmt.Sprintf(`<div class="render-error">Rendering failed: %s</div>`, html.EscapeString(err.Error()))
}

func metaTitle(ctx parser.Context) string {
	raw := goldmarkmeta.Get(ctx)
	if raw == nil {
		return ""
	}
	switch v := raw["title"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
