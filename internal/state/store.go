package state

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Entry names inside the store directory. The store is a key-value record:
// one named entry per file, always written as a whole snapshot.
const (
	entryContent  = "content.md"
	entrySettings = "settings.yaml"
	entryTheme    = "theme"
	entryLayout   = "layout"
)

//go:embed sample.md
var sampleMarkdown string

// SampleMarkdown returns the built-in sample document shown on first start.
func SampleMarkdown() string {
	return sampleMarkdown
}

// Store persists the DocumentState under a local directory. Load never fails
// outward; Save reports failures so the caller can surface a non-fatal
// notice while the in-memory state stays authoritative.
type Store struct {
	dir      string
	logger   *slog.Logger
	darkMode bool // default theme when nothing is persisted
}

// NewStore creates a store rooted at dir. defaultDark stands in for the
// OS color-scheme preference when no theme entry has been persisted yet.
func NewStore(dir string, defaultDark bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      dir,
		logger:   logger.With("component", "state"),
		darkMode: defaultDark,
	}
}

// Defaults returns the built-in state used when nothing has been persisted.
func (s *Store) Defaults() DocumentState {
	return DocumentState{
		Markdown: sampleMarkdown,
		Settings: DefaultSettings(),
		DarkMode: s.darkMode,
		Layout:   LayoutHorizontal,
	}
}

// Load reads the persisted record. Missing or malformed entries fall back to
// their defaults individually; read failures are logged, never returned.
func (s *Store) Load() DocumentState {
	st := s.Defaults()

	if raw, ok := s.read(entryContent); ok {
		st.Markdown = string(raw)
	}

	if raw, ok := s.read(entrySettings); ok {
		var settings ExportSettings
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			s.logger.Warn("malformed settings entry, using defaults", slog.Any("err", err))
		} else if err := settings.Validate(); err != nil {
			s.logger.Warn("invalid settings entry, using defaults", slog.Any("err", err))
		} else {
			if settings.FileName == "" {
				settings.FileName = DefaultFileName
			}
			st.Settings = settings
		}
	}

	if raw, ok := s.read(entryTheme); ok {
		if dark, err := strconv.ParseBool(strings.TrimSpace(string(raw))); err != nil {
			s.logger.Warn("malformed theme entry, using default", slog.Any("err", err))
		} else {
			st.DarkMode = dark
		}
	}

	if raw, ok := s.read(entryLayout); ok {
		layout := Layout(strings.TrimSpace(string(raw)))
		if ValidLayout(layout) {
			st.Layout = layout
		} else {
			s.logger.Warn("malformed layout entry, using default", slog.String("value", string(raw)))
		}
	}

	return st
}

// Save writes the whole state snapshot: every entry is replaced atomically.
func (s *Store) Save(st DocumentState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	settings, err := yaml.Marshal(st.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	entries := map[string][]byte{
		entryContent:  []byte(st.Markdown),
		entrySettings: settings,
		entryTheme:    []byte(strconv.FormatBool(st.DarkMode)),
		entryLayout:   []byte(st.Layout),
	}
	for name, data := range entries {
		if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) read(name string) ([]byte, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name)) // #nosec G304 -- entry names are fixed constants
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read state entry failed", slog.String("entry", name), slog.Any("err", err))
		}
		return nil, false
	}
	return raw, true
}

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".markpad-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replace entry: %w", err)
	}
	keep = true
	return nil
}
