package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*
var templateFS embed.FS

// documentBuilder wraps rendered body HTML into a self-contained page that
// headless Chrome can print without touching the editor server.
type documentBuilder struct {
	tmpl   *template.Template
	styles template.CSS
}

type documentData struct {
	Title  string
	Body   template.HTML
	Styles template.CSS
	Dark   bool
}

func newDocumentBuilder() (*documentBuilder, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/document.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	styles, err := templateFS.ReadFile("templates/print.css")
	if err != nil {
		return nil, fmt.Errorf("read print stylesheet: %w", err)
	}
	return &documentBuilder{
		tmpl:   tmpl,
		styles: template.CSS(styles), // #nosec G203 -- embedded stylesheet, not user input
	}, nil
}

// build returns the complete standalone HTML document.
func (b *documentBuilder) build(title, body string, dark bool) (string, error) {
	if title == "" {
		title = "Document"
	}
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, documentData{
		Title:  title,
		Body:   template.HTML(body), // #nosec G203 -- body comes from our own renderer
		Styles: b.styles,
		Dark:   dark,
	})
	if err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return buf.String(), nil
}
