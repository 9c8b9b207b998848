// Package server provides the HTTP surface of the markpad editor.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/euforicio/markpad/internal/config"
	"github.com/euforicio/markpad/internal/editor"
	"github.com/euforicio/markpad/internal/export"
	"github.com/euforicio/markpad/internal/state"
	"github.com/euforicio/markpad/static"
)

const maxUploadBytes = 8 << 20

// Server wraps the HTTP server serving the editor page, its static assets,
// the REST API, and the websocket event stream.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
	editor     *editor.Controller
	templates  *templateRenderer
	cfg        config.Config
}

// New constructs a Server around the session controller.
func New(cfg config.Config, logger *slog.Logger, ctrl *editor.Controller) (*Server, error) {
	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		editor:    ctrl,
		templates: tmpl,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	staticHandler := http.StripPrefix("/static/", http.FileServer(s.resolveStaticFS()))
	s.mux.Handle("GET /static/{path...}", staticHandler)
	s.mux.Handle("HEAD /static/{path...}", staticHandler)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)

	s.mux.HandleFunc("PUT /api/content", s.handleContent)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("PUT /api/settings", s.handleSettings)
	s.mux.HandleFunc("POST /api/theme", s.handleTheme)
	s.mux.HandleFunc("POST /api/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/clear", s.handleClear)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("GET /api/download", s.handleDownload)
	s.mux.HandleFunc("POST /api/undo", s.handleUndo)
	s.mux.HandleFunc("POST /api/redo", s.handleRedo)
}

func (s *Server) resolveStaticFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir != "" {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	s.logger.Debug("serving embedded assets")
	return static.HTTP()
}

// Handler returns the middleware-wrapped root handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware,
		csrfMiddleware,
		gzipMiddleware,
		loggingMiddleware(s.logger, s.cfg.Verbose),
	)
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully. When cfg.Port is 0 a free localhost port is picked.
func (s *Server) Start(ctx context.Context) error {
	var (
		listener net.Listener
		err      error
	)
	if s.cfg.Port == 0 {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	} else {
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	}
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	port := s.cfg.Port
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	serverURL := fmt.Sprintf("http://localhost:%d", port)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if _, err := fmt.Fprintf(os.Stdout, "markpad listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server with the provided context timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	st := s.editor.Snapshot()
	_, preview := s.editor.Preview()

	s.renderTemplate(w, r, "editor", newEditorViewData(st, preview))
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.editor.SetContent(req.Content)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.editor.Snapshot()
	respondJSON(w, http.StatusOK, snapshotResponse{
		Markdown: st.Markdown,
		Settings: st.Settings,
		DarkMode: st.DarkMode,
		Layout:   st.Layout,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var settings state.ExportSettings
	if err := decodeJSON(r, &settings); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.editor.UpdateSettings(settings); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.editor.View())
}

func (s *Server) handleTheme(w http.ResponseWriter, _ *http.Request) {
	dark := s.editor.ToggleTheme()
	respondJSON(w, http.StatusOK, map[string]bool{"darkMode": dark})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Layout state.Layout `json:"layout"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.editor.SetLayout(req.Layout); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.editor.View())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.editor.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "file field is required"})
		return
	}
	defer file.Close()

	data, err := readUpload(file)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.editor.LoadFile(header.Filename, header.Header.Get("Content-Type"), data); err != nil {
		respondJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readUpload(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, errors.New("file too large")
	}
	return data, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.editor.Export(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, editor.ErrExportBusy):
			respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case errors.Is(err, export.ErrNothingToExport):
			respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		default:
			s.logger.ErrorContext(r.Context(), "export failed", slog.Any("err", err))
			respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "export failed"})
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PDF)))
	if _, err := w.Write(res.PDF); err != nil {
		s.logger.Warn("write pdf response failed", slog.Any("err", err))
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, _ *http.Request) {
	st := s.editor.Snapshot()
	name := strings.TrimSuffix(export.FileName(st.Settings), ".pdf") + ".md"

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.WriteString(w, st.Markdown); err != nil {
		s.logger.Warn("write markdown response failed", slog.Any("err", err))
	}
}

func (s *Server) handleUndo(w http.ResponseWriter, _ *http.Request) {
	s.editor.Undo()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRedo(w http.ResponseWriter, _ *http.Request) {
	s.editor.Redo()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.render(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "template render failed", slog.String("template", name), slog.Any("err", err))
	}
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}

type errorResponse struct {
	Error string `json:"error"`
}

type snapshotResponse struct {
	Markdown string               `json:"markdown"`
	Settings state.ExportSettings `json:"settings"`
	DarkMode bool                 `json:"darkMode"`
	Layout   state.Layout         `json:"layout"`
}
