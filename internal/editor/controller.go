// Package editor owns the single editing session: its document state, all
// user-visible mutations, and the event stream driving connected clients.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/euforicio/markpad/internal/diagram"
	"github.com/euforicio/markpad/internal/export"
	"github.com/euforicio/markpad/internal/render"
	"github.com/euforicio/markpad/internal/state"
)

// Sentinel errors for controller operations.
var (
	ErrExportBusy      = errors.New("an export is already running")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// StateView is the JSON shape of the session state shown to clients.
type StateView struct {
	Settings state.ExportSettings `json:"settings"`
	DarkMode bool                 `json:"darkMode"`
	Layout   state.Layout         `json:"layout"`
}

// Controller serializes every mutation of the session's DocumentState: each
// operation is read-modify-write, persist, broadcast, under one mutex.
type Controller struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	renderer *render.Service
	diagrams *diagram.Adapter
	store    *state.Store
	exporter *export.Pipeline

	mu sync.Mutex
	st state.DocumentState

	renderSeq atomic.Uint64
	exporting atomic.Bool

	subscribers map[uint64]*subscriber
	subCounter  atomic.Uint64
	subsMu      sync.RWMutex

	watcher *fsnotify.Watcher
}

// NewController loads the persisted session state and wires the collaborators
// together. The diagram theme is aligned with the loaded state immediately.
func NewController(parentCtx context.Context, renderer *render.Service, diagrams *diagram.Adapter, store *state.Store, exporter *export.Pipeline, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Controller{
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "editor"),
		renderer:    renderer,
		diagrams:    diagrams,
		store:       store,
		exporter:    exporter,
		subscribers: make(map[uint64]*subscriber),
	}
	c.st = store.Load()
	diagrams.SetTheme(c.st.DarkMode)
	return c
}

// Close stops the file watcher and releases subscribers.
func (c *Controller) Close() error {
	c.cancel()
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Snapshot returns a copy of the current document state.
func (c *Controller) Snapshot() state.DocumentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// View returns the client-facing state frame.
func (c *Controller) View() StateView {
	st := c.Snapshot()
	return StateView{Settings: st.Settings, DarkMode: st.DarkMode, Layout: st.Layout}
}

// Preview renders the current markdown and kicks the async diagram pass,
// exactly as SetContent does but without mutating anything. Used for the
// initial page load and after theme changes.
func (c *Controller) Preview() (uint64, string) {
	st := c.Snapshot()
	return c.renderPreview(st.Markdown)
}

// SetContent replaces the markdown source. The preview frame goes out
// immediately with highlighted code and pending diagram placeholders; a
// second frame with resolved diagrams follows unless a newer edit already
// superseded this one.
func (c *Controller) SetContent(markdown string) {
	c.mu.Lock()
	c.st.Markdown = markdown
	err := c.store.Save(c.st)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("persist failed", slog.Any("err", err))
		c.notify(LevelWarning, "Could not save the document to disk; edits are kept in memory.")
	}

	c.renderPreview(markdown)
}

// renderPreview produces the sequence-numbered preview frames. Diagram
// completions carrying a stale sequence number are discarded.
func (c *Controller) renderPreview(markdown string) (uint64, string) {
	seq := c.renderSeq.Add(1)
	doc := c.renderer.Render(markdown)
	c.broadcast(Event{Type: EventPreview, Seq: seq, HTML: doc.HTML})

	go func() {
		resolved := c.diagrams.RenderAll(c.ctx, doc.HTML)
		if resolved == doc.HTML {
			return
		}
		if c.renderSeq.Load() != seq {
			c.logger.Debug("dropping stale diagram completion", slog.Uint64("seq", seq))
			return
		}
		c.broadcast(Event{Type: EventPreview, Seq: seq, HTML: resolved})
	}()

	return seq, doc.HTML
}

// UpdateSettings validates and persists new export settings.
func (c *Controller) UpdateSettings(settings state.ExportSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(settings.FileName) == "" {
		settings.FileName = state.DefaultFileName
	}

	c.mu.Lock()
	c.st.Settings = settings
	err := c.store.Save(c.st)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("persist failed", slog.Any("err", err))
		c.notify(LevelWarning, "Could not save export settings to disk.")
	}
	c.broadcastState()
	return nil
}

// ToggleTheme flips dark mode, retargets the diagram theme, and re-renders
// the preview so already-visible diagrams pick up the new palette.
func (c *Controller) ToggleTheme() bool {
	c.mu.Lock()
	c.st.DarkMode = !c.st.DarkMode
	dark := c.st.DarkMode
	markdown := c.st.Markdown
	err := c.store.Save(c.st)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("persist failed", slog.Any("err", err))
	}

	c.diagrams.SetTheme(dark)
	c.broadcastState()
	c.renderPreview(markdown)
	return dark
}

// SetLayout switches the editor pane arrangement.
func (c *Controller) SetLayout(layout state.Layout) error {
	if !state.ValidLayout(layout) {
		return fmt.Errorf("%w: %q", state.ErrInvalidLayout, layout)
	}

	c.mu.Lock()
	c.st.Layout = layout
	err := c.store.Save(c.st)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("persist failed", slog.Any("err", err))
	}
	c.broadcastState()
	return nil
}

// Clear empties the document.
func (c *Controller) Clear() {
	c.SetContent("")
	c.notify(LevelInfo, "Document cleared.")
}

// LoadFile replaces the document with an uploaded file. Only markdown files
// are accepted; anything else leaves the state untouched.
func (c *Controller) LoadFile(name, contentType string, data []byte) error {
	if !acceptableMarkdown(name, contentType) {
		c.notify(LevelWarning, fmt.Sprintf("%q is not a markdown file.", name))
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	c.SetContent(string(data))
	c.notify(LevelInfo, fmt.Sprintf("Loaded %s.", filepath.Base(name)))
	return nil
}

func acceptableMarkdown(name, contentType string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/markdown"
}

// Export runs the PDF pipeline for the current state. Only one export runs
// at a time; a second request while busy is rejected.
func (c *Controller) Export(ctx context.Context) (export.Result, error) {
	if !c.exporting.CompareAndSwap(false, true) {
		c.notify(LevelWarning, "An export is already running.")
		return export.Result{}, ErrExportBusy
	}
	defer c.exporting.Store(false)

	res, err := c.exporter.Export(ctx, c.Snapshot())
	if err != nil {
		switch {
		case errors.Is(err, export.ErrNothingToExport):
			c.notify(LevelWarning, "Nothing to export: the document is empty.")
		default:
			c.notify(LevelError, "Export failed: "+err.Error())
		}
		return export.Result{}, err
	}

	c.notify(LevelInfo, fmt.Sprintf("Exported %s (%d KiB).", res.FileName, len(res.PDF)/1024))
	return res, nil
}

// Exporting reports whether an export is currently running.
func (c *Controller) Exporting() bool {
	return c.exporting.Load()
}

// Undo is a stub: history is not tracked yet.
func (c *Controller) Undo() {
	c.notify(LevelWarning, "Undo is not implemented.")
}

// Redo is a stub: history is not tracked yet.
func (c *Controller) Redo() {
	c.notify(LevelWarning, "Redo is not implemented.")
}

func (c *Controller) broadcastState() {
	view := c.View()
	c.broadcast(Event{Type: EventState, State: &view})
}
