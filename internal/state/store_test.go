package state_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/euforicio/markpad/internal/state"
)

func newStore(t *testing.T) *state.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return state.NewStore(t.TempDir(), false, logger)
}

func TestLoadDefaultsWhenNothingPersisted(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	st := store.Load()
	if st.Markdown != state.SampleMarkdown() {
		t.Fatalf("expected sample markdown on first load")
	}
	if st.Settings != state.DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", st.Settings)
	}
	if st.DarkMode {
		t.Fatalf("expected configured default theme")
	}
	if st.Layout != state.LayoutHorizontal {
		t.Fatalf("expected horizontal layout default, got %q", st.Layout)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	margins := []int{0, 20, 100}
	for _, format := range state.PageFormats() {
		for _, orientation := range []state.Orientation{state.OrientationPortrait, state.OrientationLandscape} {
			for _, margin := range margins {
				store := newStore(t)
				want := state.DocumentState{
					Markdown: "# Round trip\n",
					Settings: state.ExportSettings{
						FileName:    "report.pdf",
						PageFormat:  format,
						Orientation: orientation,
						MarginMM:    margin,
					},
					DarkMode: true,
					Layout:   state.LayoutVertical,
				}
				if err := store.Save(want); err != nil {
					t.Fatalf("Save(%v/%v/%d): %v", format, orientation, margin, err)
				}
				if got := store.Load(); got != want {
					t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
				}
			}
		}
	}
}

func TestLoadMalformedSettingsFallsBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	store := state.NewStore(dir, false, logger)

	if err := store.Save(state.DocumentState{
		Markdown: "kept",
		Settings: state.DefaultSettings(),
		Layout:   state.LayoutHorizontal,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("{not yaml::"), 0o644); err != nil {
		t.Fatalf("corrupt settings: %v", err)
	}

	st := store.Load()
	if st.Settings != state.DefaultSettings() {
		t.Fatalf("expected default settings after corruption, got %+v", st.Settings)
	}
	if st.Markdown != "kept" {
		t.Fatalf("expected other entries to survive, got %q", st.Markdown)
	}
}

func TestLoadMalformedThemeAndLayoutFallBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	store := state.NewStore(dir, true, logger)

	if err := os.WriteFile(filepath.Join(dir, "theme"), []byte("maybe"), 0o644); err != nil {
		t.Fatalf("write theme: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "layout"), []byte("diagonal"), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}

	st := store.Load()
	if !st.DarkMode {
		t.Fatalf("expected configured dark default for malformed theme entry")
	}
	if st.Layout != state.LayoutHorizontal {
		t.Fatalf("expected default layout for malformed layout entry, got %q", st.Layout)
	}
}

func TestSettingsValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		settings state.ExportSettings
		wantErr  error
	}{
		{"valid", state.DefaultSettings(), nil},
		{"uppercaseFormat", state.ExportSettings{FileName: "x", PageFormat: "A4", Orientation: state.OrientationPortrait}, nil},
		{"badFormat", state.ExportSettings{PageFormat: "b5", Orientation: state.OrientationPortrait}, state.ErrInvalidPageFormat},
		{"badOrientation", state.ExportSettings{PageFormat: state.PageA4, Orientation: "sideways"}, state.ErrInvalidOrientation},
		{"negativeMargin", state.ExportSettings{PageFormat: state.PageA4, Orientation: state.OrientationPortrait, MarginMM: -1}, state.ErrInvalidMargin},
	}

	for _, tc := range cases {
		err := tc.settings.Validate()
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestThemeEntrySerializedAsText(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	store := state.NewStore(dir, false, logger)

	st := store.Defaults()
	st.DarkMode = true
	if err := store.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "theme"))
	if err != nil {
		t.Fatalf("read theme entry: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "true" {
		t.Fatalf("expected theme entry %q, got %q", "true", raw)
	}
}
