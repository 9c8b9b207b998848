package server

import (
	"embed"
	"html/template"
	"io"

	"github.com/euforicio/markpad/internal/state"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	base, err := template.New("editor").ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}
	return &templateRenderer{tmpl: base}, nil
}

func (r *templateRenderer) render(w io.Writer, name string, data any) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

// shortcut is one row of the keyboard help dialog.
type shortcut struct {
	Chord  string
	Action string
}

// shortcuts is the fixed chord table shown in the help dialog and bound in
// the frontend script.
var shortcuts = []shortcut{
	{"Ctrl+B", "Bold selection"},
	{"Ctrl+I", "Italic selection"},
	{"Ctrl+K", "Insert link"},
	{"Ctrl+S", "Save markdown file"},
	{"Ctrl+E", "Export PDF"},
	{"Ctrl+P", "Print preview"},
	{"Ctrl+D", "Toggle dark mode"},
	{"Ctrl+Z", "Undo"},
	{"Ctrl+Y", "Redo"},
	{"Ctrl+/", "Show shortcuts"},
}

type editorViewData struct {
	Title       string
	Markdown    string
	Preview     template.HTML
	Settings    state.ExportSettings
	PageFormats []state.PageFormat
	DarkMode    bool
	Layout      state.Layout
	Shortcuts   []shortcut
}

func newEditorViewData(st state.DocumentState, preview string) editorViewData {
	return editorViewData{
		Title:       "markpad",
		Markdown:    st.Markdown,
		Preview:     template.HTML(preview), // #nosec G203 -- produced by our own renderer
		Settings:    st.Settings,
		PageFormats: state.PageFormats(),
		DarkMode:    st.DarkMode,
		Layout:      st.Layout,
		Shortcuts:   shortcuts,
	}
}
