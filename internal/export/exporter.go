// Package export turns the current document into a PDF via headless Chrome.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/render"
	"github.com/euforicio/markpad/internal/state"
)

const (
	defaultCaptureTimeout = 30 * time.Second
	mmPerInch             = 25.4
)

// paperSizes maps page formats to width x height in millimeters, portrait.
var paperSizes = map[state.PageFormat][2]float64{
	state.PageA4:      {210, 297},
	state.PageLetter:  {215.9, 279.4},
	state.PageLegal:   {215.9, 355.6},
	state.PageTabloid: {279.4, 431.8},
	state.PageA3:      {297, 420},
	state.PageA5:      {148, 210},
}

// Pipeline renders markdown to themed HTML, resolves every diagram, and
// captures the result as PDF. The browser is launched lazily on first export
// and reused afterwards.
type Pipeline struct {
	renderer *render.Service
	diagrams *diagram.Adapter
	builder  *documentBuilder
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

// Options configure the pipeline.
type Options struct {
	// CaptureTimeout bounds the page load and PDF capture per export.
	CaptureTimeout time.Duration
}

// Result is a finished export.
type Result struct {
	PDF      []byte
	FileName string
}

// New creates a pipeline sharing the given renderer and diagram adapter with
// the live preview, so exported output matches what the user sees.
func New(renderer *render.Service, diagrams *diagram.Adapter, logger *slog.Logger, opts *Options) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	builder, err := newDocumentBuilder()
	if err != nil {
		return nil, err
	}

	timeout := defaultCaptureTimeout
	if opts != nil && opts.CaptureTimeout > 0 {
		timeout = opts.CaptureTimeout
	}

	return &Pipeline{
		renderer: renderer,
		diagrams: diagrams,
		builder:  builder,
		logger:   logger.With("component", "export"),
		timeout:  timeout,
	}, nil
}

// Export runs the whole pipeline for the given state. Diagrams are rendered
// synchronously here, so the capture never races an unfinished preview.
func (p *Pipeline) Export(ctx context.Context, st state.DocumentState) (Result, error) {
	if strings.TrimSpace(st.Markdown) == "" {
		return Result{}, ErrNothingToExport
	}
	if err := st.Settings.Validate(); err != nil {
		return Result{}, fmt.Errorf("export settings: %w", err)
	}

	start := time.Now()

	doc := p.renderer.Render(st.Markdown)

	p.diagrams.SetTheme(st.DarkMode)
	body := p.diagrams.RenderAll(ctx, doc.HTML)
	body = rasterizeDiagrams(body, st.DarkMode, p.logger)

	title := doc.Title
	if title == "" {
		title = strings.TrimSuffix(FileName(st.Settings), ".pdf")
	}
	page, err := p.builder.build(title, body, st.DarkMode)
	if err != nil {
		return Result{}, err
	}

	pdf, err := p.capture(ctx, page, st.Settings)
	if err != nil {
		return Result{}, err
	}

	p.logger.Info("export complete",
		slog.String("format", string(st.Settings.PageFormat)),
		slog.String("orientation", string(st.Settings.Orientation)),
		slog.Int("bytes", len(pdf)),
		slog.Duration("duration", time.Since(start)))

	return Result{PDF: pdf, FileName: FileName(st.Settings)}, nil
}

// Close releases the browser if one was launched.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	p.browser = nil
	return err
}

// capture writes the page to a temp file and prints it with headless Chrome.
func (p *Pipeline) capture(ctx context.Context, page string, settings state.ExportSettings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "markpad-export-*")
	if err != nil {
		return nil, fmt.Errorf("create export workspace: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pagePath := filepath.Join(tmpDir, "document.html")
	if err := os.WriteFile(pagePath, []byte(page), 0o600); err != nil {
		return nil, fmt.Errorf("write capture page: %w", err)
	}

	browser, err := p.ensureBrowser()
	if err != nil {
		return nil, err
	}

	tab, err := browser.Page(proto.TargetCreateTarget{URL: "file://" + pagePath})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer tab.Close()

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := tab.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := tab.PDF(printOptions(settings))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading pdf stream: %v", ErrCapture, err)
	}
	return pdf, nil
}

// ensureBrowser lazily launches and connects to headless Chrome.
func (p *Pipeline) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	l := launcher.New()
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	// NoSandbox required in CI and containerized environments.
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	p.browser = browser
	return browser, nil
}

// printOptions maps export settings onto Chrome's print parameters.
func printOptions(settings state.ExportSettings) *proto.PagePrintToPDF {
	size, ok := paperSizes[state.PageFormat(strings.ToLower(string(settings.PageFormat)))]
	if !ok {
		size = paperSizes[state.PageA4]
	}
	width, height := size[0], size[1]
	if Orientation(settings) == state.OrientationLandscape {
		width, height = height, width
	}
	margin := float64(settings.MarginMM) / mmPerInch

	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(width / mmPerInch),
		PaperHeight:     floatPtr(height / mmPerInch),
		MarginTop:       floatPtr(margin),
		MarginBottom:    floatPtr(margin),
		MarginLeft:      floatPtr(margin),
		MarginRight:     floatPtr(margin),
		PrintBackground: true,
	}
}

// Orientation returns the normalized page orientation from settings.
func Orientation(settings state.ExportSettings) state.Orientation {
	if strings.EqualFold(string(settings.Orientation), string(state.OrientationLandscape)) {
		return state.OrientationLandscape
	}
	return state.OrientationPortrait
}

// FileName returns the download filename for the given settings, always with
// a .pdf extension.
func FileName(settings state.ExportSettings) string {
	name := strings.TrimSpace(settings.FileName)
	if name == "" {
		name = state.DefaultFileName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func floatPtr(v float64) *float64 { return &v }
