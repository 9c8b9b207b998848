// Package state holds the editor session state and its on-disk persistence.
package state

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for settings validation.
var (
	ErrInvalidPageFormat  = errors.New("invalid page format")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidMargin      = errors.New("invalid margin")
	ErrInvalidLayout      = errors.New("invalid layout")
)

// PageFormat identifies a fixed page size for export.
type PageFormat string

// Supported page formats.
const (
	PageA4      PageFormat = "a4"
	PageLetter  PageFormat = "letter"
	PageLegal   PageFormat = "legal"
	PageTabloid PageFormat = "tabloid"
	PageA3      PageFormat = "a3"
	PageA5      PageFormat = "a5"
)

// PageFormats returns every supported page format.
func PageFormats() []PageFormat {
	return []PageFormat{PageA4, PageLetter, PageLegal, PageTabloid, PageA3, PageA5}
}

// Orientation identifies the page orientation for export.
type Orientation string

// Supported orientations.
const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Layout identifies the editor pane arrangement. Purely presentational.
type Layout string

// Supported layouts.
const (
	LayoutHorizontal Layout = "horizontal"
	LayoutVertical   Layout = "vertical"
)

// DefaultFileName is used when the export filename setting is empty.
const DefaultFileName = "document.pdf"

// ExportSettings are the user-configurable export parameters. They are read
// and written as one record, never field-by-field.
type ExportSettings struct {
	FileName    string      `yaml:"fileName" json:"fileName"`
	PageFormat  PageFormat  `yaml:"pageFormat" json:"pageFormat"`
	Orientation Orientation `yaml:"orientation" json:"orientation"`
	MarginMM    int         `yaml:"marginMm" json:"marginMm"`
}

// DefaultSettings returns the built-in export settings.
func DefaultSettings() ExportSettings {
	return ExportSettings{
		FileName:    DefaultFileName,
		PageFormat:  PageA4,
		Orientation: OrientationPortrait,
		MarginMM:    20,
	}
}

// Validate checks enum fields and the margin bound.
func (s ExportSettings) Validate() error {
	if !validPageFormat(s.PageFormat) {
		return fmt.Errorf("%w: %q", ErrInvalidPageFormat, s.PageFormat)
	}
	switch Orientation(strings.ToLower(string(s.Orientation))) {
	case OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, s.Orientation)
	}
	if s.MarginMM < 0 {
		return fmt.Errorf("%w: %d (must be >= 0)", ErrInvalidMargin, s.MarginMM)
	}
	return nil
}

func validPageFormat(f PageFormat) bool {
	for _, known := range PageFormats() {
		if PageFormat(strings.ToLower(string(f))) == known {
			return true
		}
	}
	return false
}

// ValidLayout reports whether l is a supported pane layout.
func ValidLayout(l Layout) bool {
	return l == LayoutHorizontal || l == LayoutVertical
}

// DocumentState is the whole persisted editor session: markdown source,
// export settings, theme flag, and pane layout.
type DocumentState struct {
	Markdown string
	Settings ExportSettings
	DarkMode bool
	Layout   Layout
}
