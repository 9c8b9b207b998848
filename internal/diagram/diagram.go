// Package diagram renders diagram placeholders in preview HTML using the
// embedded D2 compiler.
package diagram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"

	"github.com/euforicio/markpad/internal/render/transform"
)

// ErrEmptyDiagram is returned when a placeholder carries no diagram source.
var ErrEmptyDiagram = errors.New("empty diagram")

// placeholderOpenPattern matches the opening tag of pending placeholders
// emitted by the renderer. Group 1: marker classes, group 2: diagram kind,
// group 3: base64 source. The body is not part of the pattern: the literal
// source may itself contain "</div>", so the body length is derived from the
// decoded base64 attribute instead.
var placeholderOpenPattern = regexp.MustCompile(
	`<div class="(diagram(?: schema)?)" data-diagram-kind="(mermaid|schema)" data-diagram-state="pending" data-source-b64="([A-Za-z0-9+/=]*)">`)

// Adapter compiles diagram placeholders into inline SVG. The theme is
// process-wide state: SetTheme affects renders requested after the call,
// already-rendered diagrams are left as they are.
type Adapter struct {
	logger  *slog.Logger
	timeout time.Duration
	dark    atomic.Bool
}

// Options configure the adapter.
type Options struct {
	Timeout time.Duration
	Dark    bool
}

// New creates an adapter with the initial theme applied.
func New(logger *slog.Logger, opts *Options) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Options{Timeout: 12 * time.Second}
	if opts != nil {
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		cfg.Dark = opts.Dark
	}

	a := &Adapter{
		logger:  logger.With("component", "diagram"),
		timeout: cfg.Timeout,
	}
	a.dark.Store(cfg.Dark)
	return a
}

// SetTheme switches the diagram theme used by subsequent renders.
func (a *Adapter) SetTheme(dark bool) {
	a.dark.Store(dark)
}

// Theme reports whether the dark theme is active.
func (a *Adapter) Theme() bool {
	return a.dark.Load()
}

// RenderAll locates every pending diagram placeholder in the given HTML and
// renders it in place, returning the updated HTML. Placeholders already in a
// rendered or failed state are skipped, so a second pass over the same HTML
// is a no-op. A single diagram failure is logged and marked on its own
// placeholder without aborting siblings; nothing ever panics past this
// boundary.
func (a *Adapter) RenderAll(ctx context.Context, htmlIn string) (out string) {
	out = htmlIn
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("diagram render pass panicked", slog.Any("panic", r))
			out = htmlIn
		}
	}()

	if !strings.Contains(htmlIn, `data-diagram-state="pending"`) {
		return htmlIn
	}

	rendered, failed := 0, 0
	start := time.Now()

	var b strings.Builder
	last := 0
	for _, m := range placeholderOpenPattern.FindAllStringSubmatchIndex(htmlIn, -1) {
		if m[0] < last {
			// Opening tag inside the body of a placeholder already consumed.
			continue
		}
		class, kind, encoded := htmlIn[m[2]:m[3]], htmlIn[m[4]:m[5]], htmlIn[m[6]:m[7]]

		source, decodeErr := transform.DecodeSource(encoded)
		bodyEnd, ok := placeholderEnd(htmlIn, m[1], source, decodeErr == nil)
		if !ok {
			continue
		}

		var replacement string
		err := decodeErr
		if err == nil {
			var svg string
			svg, err = a.render(ctx, source)
			if err == nil {
				rendered++
				replacement = fmt.Sprintf(`<div class="%s" data-diagram-kind="%s" data-diagram-state="%s" data-source-b64="%s">%s</div>%s`,
					class, kind, transform.StateRendered, encoded, svg, "\n")
			}
		}
		if err != nil {
			failed++
			a.logger.Warn("diagram render failed", slog.String("kind", kind), slog.Any("err", err))
			replacement = fmt.Sprintf(`<div class="%s" data-diagram-kind="%s" data-diagram-state="%s" data-source-b64="%s"><div class="diagram-error">%s</div></div>%s`,
				class, kind, transform.StateFailed, encoded, html.EscapeString(err.Error()), "\n")
		}

		b.WriteString(htmlIn[last:m[0]])
		b.WriteString(replacement)
		last = bodyEnd
	}
	b.WriteString(htmlIn[last:])
	out = b.String()

	if rendered > 0 || failed > 0 {
		a.logger.Debug("diagram render pass",
			slog.Int("rendered", rendered),
			slog.Int("failed", failed),
			slog.Duration("duration", time.Since(start)))
	}
	return out
}

// placeholderEnd finds the index just past a placeholder's closing tag,
// given the index past its opening tag. The renderer writes the literal
// source verbatim before the closing tag, so when the decoded attribute
// matches the body the closing tag position is exact even if the source
// contains "</div>". Otherwise the nearest closing tag is used.
func placeholderEnd(htmlIn string, bodyStart int, source string, decoded bool) (int, bool) {
	rest := htmlIn[bodyStart:]
	if decoded && strings.HasPrefix(rest, source+"</div>") {
		end := bodyStart + len(source) + len("</div>")
		if end < len(htmlIn) && htmlIn[end] == '\n' {
			end++
		}
		return end, true
	}
	i := strings.Index(rest, "</div>")
	if i < 0 {
		return 0, false
	}
	end := bodyStart + i + len("</div>")
	if end < len(htmlIn) && htmlIn[end] == '\n' {
		end++
	}
	return end, true
}

// render compiles a single diagram source into SVG under the current theme.
func (a *Adapter) render(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptyDiagram
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = d2log.With(ctx, a.logger)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return "", fmt.Errorf("init ruler: %w", err)
	}

	themeID := d2themescatalog.NeutralDefault.ID
	if a.dark.Load() {
		themeID = d2themescatalog.DarkFlagshipTerrastruct.ID
	}
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID: &themeID,
		Pad:     &pad,
	}

	compileOpts := &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: a.layoutResolver,
	}

	diagram, _, err := d2lib.Compile(ctx, source, compileOpts, renderOpts)
	if err != nil {
		return "", err
	}
	if diagram == nil {
		return "", errors.New("diagram compiler returned nil diagram")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return "", fmt.Errorf("render svg: %w", err)
	}
	return string(svg), nil
}

func (a *Adapter) layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported diagram layout %q", engine)
	}
}
